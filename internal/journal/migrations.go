package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one versioned schema step.
type migration struct {
	version     int
	description string
	up          func(*sql.Tx) error
}

var migrations = []migration{
	{
		version:     1,
		description: "Create schema_version table",
		up:          migration001Up,
	},
	{
		version:     2,
		description: "Create runs table",
		up:          migration002Up,
	},
	{
		version:     3,
		description: "Create events table",
		up:          migration003Up,
	},
	{
		version:     4,
		description: "Create run summary view",
		up:          migration004Up,
	},
}

// migrate runs all pending schema migrations.
func (j *Journal) migrate() error {
	current, err := j.currentVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		err := j.ExecTx(func(tx *sql.Tx) error {
			if err := m.up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, m.version, m.description, time.Now())
			return err
		})
		if err != nil {
			return err
		}

		j.log.Debugw("journal migration applied", "version", m.version, "description", m.description)
	}

	return nil
}

// currentVersion returns the latest applied schema version, 0 for a
// fresh database.
func (j *Journal) currentVersion() (int, error) {
	var tableExists bool
	err := j.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return 0, err
	}
	if !tableExists {
		return 0, nil
	}

	var version int
	err = j.conn.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_version
	`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Migration 001: schema version tracking table
func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

// Migration 002: runs table
func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration_seconds INTEGER,
			status TEXT NOT NULL DEFAULT 'running',
			error_message TEXT
		);

		CREATE INDEX idx_runs_started ON runs(started_at);
		CREATE INDEX idx_runs_status ON runs(status);
	`)
	return err
}

// Migration 003: events table
func migration003Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			source TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			data TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

		CREATE INDEX idx_events_run ON events(run_id);
		CREATE INDEX idx_events_type ON events(event_type);
		CREATE INDEX idx_events_occurred ON events(occurred_at);
	`)
	return err
}

// Migration 004: run summary view
func migration004Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE VIEW v_run_summary AS
		SELECT
			r.id,
			r.label,
			r.started_at,
			r.completed_at,
			r.status,
			COUNT(e.id) AS event_count,
			SUM(CASE WHEN e.event_type = 'error' THEN 1 ELSE 0 END) AS error_count
		FROM runs r
		LEFT JOIN events e ON r.id = e.run_id
		GROUP BY r.id;
	`)
	return err
}
