// Package journal persists engine runs and their event streams in a
// local SQLite database so sessions can be inspected after the fact.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Journal wraps the SQLite connection holding runs and events.
type Journal struct {
	conn *sql.DB
	path string
	log  *zap.SugaredLogger
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(j *Journal) {
		if log != nil {
			j.log = log
		}
	}
}

// Open opens or creates the journal database at path and brings its
// schema up to date.
func Open(path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	j := &Journal{
		conn: conn,
		path: path,
		log:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// ExecTx executes a function within a transaction.
func (j *Journal) ExecTx(fn func(*sql.Tx) error) error {
	tx, err := j.conn.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// SchemaVersion returns the current schema version.
func (j *Journal) SchemaVersion() (int, error) {
	var version int
	err := j.conn.QueryRow("SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Stats returns row counts per journal table.
func (j *Journal) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, table := range []string{"runs", "events"} {
		var count int64
		err := j.conn.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}
