package store

import (
	"context"
	"sync"

	"github.com/dshills/reviewgraph/graph"
)

// MemArchive keeps records in memory. Saving an execution id twice
// replaces the earlier record in place.
type MemArchive struct {
	mu      sync.RWMutex
	records []graph.ExecutionRecord
	index   map[string]int
	closed  bool
}

// NewMemArchive returns an empty archive.
func NewMemArchive() *MemArchive {
	return &MemArchive{index: make(map[string]int)}
}

// SaveRecord implements graph.Archive.
func (m *MemArchive) SaveRecord(ctx context.Context, rec graph.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	rec.Steps = append([]graph.StepRecord(nil), rec.Steps...)
	if i, ok := m.index[rec.ExecutionID]; ok {
		m.records[i] = rec
		return nil
	}
	m.index[rec.ExecutionID] = len(m.records)
	m.records = append(m.records, rec)
	return nil
}

// Record implements Archive.
func (m *MemArchive) Record(_ context.Context, executionID string) (graph.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return graph.ExecutionRecord{}, ErrClosed
	}
	i, ok := m.index[executionID]
	if !ok {
		return graph.ExecutionRecord{}, ErrNotFound
	}
	rec := m.records[i]
	rec.Steps = append([]graph.StepRecord(nil), rec.Steps...)
	return rec, nil
}

// Records implements Archive.
func (m *MemArchive) Records(_ context.Context, limit int) ([]graph.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	start := 0
	if limit > 0 && limit < len(m.records) {
		start = len(m.records) - limit
	}
	out := make([]graph.ExecutionRecord, 0, len(m.records)-start)
	for _, rec := range m.records[start:] {
		rec.Steps = append([]graph.StepRecord(nil), rec.Steps...)
		out = append(out, rec)
	}
	return out, nil
}

// Close implements Archive.
func (m *MemArchive) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
