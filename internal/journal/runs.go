package journal

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// StartRun inserts a new running session and returns it.
func (j *Journal) StartRun(label string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Label:     label,
		StartedAt: time.Now(),
		Status:    "running",
	}
	if host, err := os.Hostname(); err == nil {
		run.Host = host
	}

	err := j.ExecTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, label, host, started_at, status)
			VALUES (?, ?, ?, ?, 'running')
		`, run.ID, run.Label, run.Host, run.StartedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	j.log.Debugw("run started", "run", run.ID, "label", run.Label)
	return run, nil
}

// CompleteRun marks a run as completed successfully.
func (j *Journal) CompleteRun(runID string) error {
	return j.finishRun(runID, "completed", nil)
}

// FailRun marks a run as failed with an error message.
func (j *Journal) FailRun(runID string, errorMessage string) error {
	return j.finishRun(runID, "failed", &errorMessage)
}

// finishRun stamps the completion time, duration and final status.
func (j *Journal) finishRun(runID, status string, errorMessage *string) error {
	return j.ExecTx(func(tx *sql.Tx) error {
		completedAt := time.Now()

		var startedAt time.Time
		err := tx.QueryRow(`SELECT started_at FROM runs WHERE id = ?`, runID).Scan(&startedAt)
		if err != nil {
			return fmt.Errorf("look up run %s: %w", runID, err)
		}
		duration := int(completedAt.Sub(startedAt).Seconds())

		_, err = tx.Exec(`
			UPDATE runs
			SET completed_at = ?,
				duration_seconds = ?,
				status = ?,
				error_message = ?
			WHERE id = ?
		`, completedAt, duration, status, errorMessage, runID)
		return err
	})
}

// GetRun retrieves one run by ID.
func (j *Journal) GetRun(runID string) (*Run, error) {
	run := &Run{}
	err := j.conn.QueryRow(`
		SELECT id, label, host, started_at, completed_at, duration_seconds, status, error_message
		FROM runs
		WHERE id = ?
	`, runID).Scan(
		&run.ID, &run.Label, &run.Host, &run.StartedAt,
		&run.CompletedAt, &run.DurationSeconds, &run.Status, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns returns the latest runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.conn.Query(`
		SELECT id, label, host, started_at, completed_at, duration_seconds, status, error_message
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID, &run.Label, &run.Host, &run.StartedAt,
			&run.CompletedAt, &run.DurationSeconds, &run.Status, &run.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunSummaries returns per-run event volumes, newest first.
func (j *Journal) RunSummaries(limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.conn.Query(`
		SELECT id, label, started_at, completed_at, status, event_count, error_count
		FROM v_run_summary
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []*RunSummary{}
	for rows.Next() {
		s := &RunSummary{}
		err := rows.Scan(
			&s.ID, &s.Label, &s.StartedAt, &s.CompletedAt,
			&s.Status, &s.EventCount, &s.ErrorCount,
		)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// PruneRuns deletes runs started before the cutoff, cascading to their
// events, and compacts the file when anything was removed.
func (j *Journal) PruneRuns(olderThan time.Time) (int64, error) {
	var deleted int64
	err := j.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, olderThan)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if _, err := j.conn.Exec("VACUUM"); err != nil {
			return deleted, fmt.Errorf("vacuum journal: %w", err)
		}
		j.log.Debugw("journal pruned", "runs", deleted)
	}
	return deleted, nil
}
