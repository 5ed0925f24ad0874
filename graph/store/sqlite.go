package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS run_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			start_node TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			record TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_run_records_session ON run_records(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_run_records_start ON run_records(start_time)",
	},
	upsert: `INSERT INTO run_records
		(execution_id, session_id, start_node, status, start_time, duration_ms, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id) DO UPDATE SET
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			record = excluded.record`,
}

// SQLiteArchive stores records in a SQLite database file. Use ":memory:"
// for a throwaway database.
type SQLiteArchive struct {
	*sqlArchive
	path string
}

// NewSQLiteArchive opens or creates the database at path.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	base, err := newSQLArchive(ctx, db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteArchive{sqlArchive: base, path: path}, nil
}

// Path returns the database location.
func (s *SQLiteArchive) Path() string {
	return s.path
}
