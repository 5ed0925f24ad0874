package graph

import (
	"context"
	"sync"
	"time"
)

// RunStatus is the lifecycle state of one run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StepStatus is the outcome of one node visit.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepRecord describes one node visit within a run.
type StepRecord struct {
	Step      int           `json:"step"`
	NodeID    string        `json:"node_id"`
	NodeName  string        `json:"node_name"`
	Duration  time.Duration `json:"duration"`
	Status    StepStatus    `json:"status"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExecutionRecord is the log of one run. Exactly one record is appended to
// the history per call to Execute.
type ExecutionRecord struct {
	ExecutionID   string        `json:"execution_id"`
	SessionID     string        `json:"session_id"`
	StartNode     string        `json:"start_node"`
	Steps         []StepRecord  `json:"steps"`
	StepsExecuted int           `json:"steps_executed"`
	Status        RunStatus     `json:"status"`
	Error         string        `json:"error,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	TotalDuration time.Duration `json:"total_duration"`
}

func (r ExecutionRecord) clone() ExecutionRecord {
	r.Steps = append([]StepRecord(nil), r.Steps...)
	return r
}

// Archive receives a copy of every finished record. Implementations live
// in graph/store.
type Archive interface {
	SaveRecord(ctx context.Context, rec ExecutionRecord) error
}

// History is an append-only, concurrency-safe list of run records.
type History struct {
	mu      sync.RWMutex
	records []ExecutionRecord
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds rec to the end of the history.
func (h *History) Append(rec ExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec.clone())
}

// Recent returns up to limit of the newest records, oldest first. A
// non-positive limit returns every record.
func (h *History) Recent(limit int) []ExecutionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(h.records) {
		start = len(h.records) - limit
	}
	out := make([]ExecutionRecord, 0, len(h.records)-start)
	for _, r := range h.records[start:] {
		out = append(out, r.clone())
	}
	return out
}

// Len reports the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Stats aggregates graph shape and run outcomes.
type Stats struct {
	TotalNodes           int           `json:"total_nodes"`
	TotalEdges           int           `json:"total_edges"`
	TotalExecutions      int           `json:"total_executions"`
	SuccessfulExecutions int           `json:"successful_executions"`
	FailedExecutions     int           `json:"failed_executions"`
	SuccessRate          float64       `json:"success_rate"`
	AverageDuration      time.Duration `json:"average_duration"`
	MemoryEntries        int           `json:"memory_entries"`
}

// summarize fills the run counters of s. Only completed runs carry a total
// duration, so only they contribute to the average.
func (h *History) summarize(s *Stats) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var total time.Duration
	for _, r := range h.records {
		switch r.Status {
		case RunCompleted:
			s.SuccessfulExecutions++
			total += r.TotalDuration
		case RunFailed:
			s.FailedExecutions++
		}
	}
	s.TotalExecutions = len(h.records)
	if s.TotalExecutions > 0 {
		s.SuccessRate = float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)
	}
	if s.SuccessfulExecutions > 0 {
		s.AverageDuration = total / time.Duration(s.SuccessfulExecutions)
	}
}
