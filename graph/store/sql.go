package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/dshills/reviewgraph/graph"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name   string
	schema []string
	upsert string
}

// sqlArchive implements Archive over database/sql. Each record is stored
// as a JSON document next to a few indexed columns.
type sqlArchive struct {
	db      *sql.DB
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

func newSQLArchive(ctx context.Context, db *sql.DB, d dialect) (*sqlArchive, error) {
	a := &sqlArchive{db: db, dialect: d}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return a, nil
}

func (a *sqlArchive) checkOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	return nil
}

// SaveRecord implements graph.Archive.
func (a *sqlArchive) SaveRecord(ctx context.Context, rec graph.ExecutionRecord) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = a.db.ExecContext(ctx, a.dialect.upsert,
		rec.ExecutionID,
		rec.SessionID,
		rec.StartNode,
		string(rec.Status),
		rec.StartTime.UnixNano(),
		rec.TotalDuration.Milliseconds(),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.ExecutionID, err)
	}
	return nil
}

// Record implements Archive.
func (a *sqlArchive) Record(ctx context.Context, executionID string) (graph.ExecutionRecord, error) {
	if err := a.checkOpen(); err != nil {
		return graph.ExecutionRecord{}, err
	}
	var doc string
	err := a.db.QueryRowContext(ctx, "SELECT record FROM run_records WHERE execution_id = ?", executionID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.ExecutionRecord{}, ErrNotFound
	}
	if err != nil {
		return graph.ExecutionRecord{}, fmt.Errorf("failed to load record %s: %w", executionID, err)
	}
	return decodeRecord(doc)
}

// Records implements Archive.
func (a *sqlArchive) Records(ctx context.Context, limit int) ([]graph.ExecutionRecord, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}

	query := "SELECT record FROM run_records ORDER BY start_time DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []graph.ExecutionRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close implements Archive.
func (a *sqlArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func decodeRecord(doc string) (graph.ExecutionRecord, error) {
	var rec graph.ExecutionRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return graph.ExecutionRecord{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
