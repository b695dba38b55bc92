package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/karlmicha/rguils/internal/events"
)

// RecordEvent persists one engine event under a run and returns the row
// ID. The payload map is stored as JSON.
func (j *Journal) RecordEvent(runID string, event events.Event) (int64, error) {
	var data string
	if len(event.Data) > 0 {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return 0, fmt.Errorf("encode event payload: %w", err)
		}
		data = string(encoded)
	}
	occurred := event.Timestamp
	if occurred.IsZero() {
		occurred = time.Now()
	}

	var id int64
	err := j.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO events (run_id, event_type, source, occurred_at, data)
			VALUES (?, ?, ?, ?, ?)
		`, runID, string(event.Type), event.Source, occurred, data)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// EventsForRun returns a run's events in recording order.
func (j *Journal) EventsForRun(runID string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := j.conn.Query(`
		SELECT id, run_id, event_type, source, occurred_at, data
		FROM events
		WHERE run_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// RecentEvents returns the latest events across all runs, newest first.
func (j *Journal) RecentEvents(limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.conn.Query(`
		SELECT id, run_id, event_type, source, occurred_at, data
		FROM events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventTypeCounts returns per-type event counts for one run.
func (j *Journal) EventTypeCounts(runID string) (map[string]int, error) {
	rows, err := j.conn.Query(`
		SELECT event_type, COUNT(*) AS count
		FROM events
		WHERE run_id = ?
		GROUP BY event_type
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]*EventRecord, error) {
	records := []*EventRecord{}
	for rows.Next() {
		rec := &EventRecord{}
		var data sql.NullString
		err := rows.Scan(&rec.ID, &rec.RunID, &rec.Type, &rec.Source, &rec.OccurredAt, &data)
		if err != nil {
			return nil, err
		}
		rec.Data = data.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
