// Package store archives finished run records beyond the lifetime of the
// in-process history. Archives are write-mostly audit logs; the
// orchestrator never reads from them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/reviewgraph/graph"
)

// ErrNotFound is returned when no record has the requested execution id.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed archive.
var ErrClosed = errors.New("archive is closed")

// Archive persists execution records.
type Archive interface {
	graph.Archive

	// Record returns the record of executionID or ErrNotFound.
	Record(ctx context.Context, executionID string) (graph.ExecutionRecord, error)

	// Records returns up to limit of the newest records, oldest first.
	// A non-positive limit returns every record.
	Records(ctx context.Context, limit int) ([]graph.ExecutionRecord, error)

	Close() error
}

// Open returns the archive for driver: "memory", "sqlite" or "mysql".
// dsn is ignored by the memory driver.
func Open(driver, dsn string) (Archive, error) {
	switch driver {
	case "", "memory":
		return NewMemArchive(), nil
	case "sqlite":
		return NewSQLiteArchive(dsn)
	case "mysql":
		return NewMySQLArchive(dsn)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}
