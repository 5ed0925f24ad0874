package emit

import "time"

// Messages emitted by the orchestrator.
const (
	MsgRunStart    = "run_start"
	MsgRunEnd      = "run_end"
	MsgNodeStart   = "node_start"
	MsgNodeRetry   = "node_retry"
	MsgNodeEnd     = "node_end"
	MsgNodeError   = "node_error"
	MsgNodeSkipped = "node_skipped"
	MsgEviction    = "memory_eviction"
)

// Event is one observable moment of a run.
//
// Meta carries message-specific fields. By convention "error" holds error
// text, "duration_ms" an int64 and "attempt" an int.
type Event struct {
	ExecutionID string
	SessionID   string
	Step        int
	NodeID      string
	Msg         string
	Time        time.Time
	Meta        map[string]any
}
