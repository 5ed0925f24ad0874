package graph

import (
	"maps"
	"time"
)

// ExecutionContext carries the data flowing through one run.
//
// Data holds the working payload. Metadata holds engine and node
// bookkeeping such as completion flags, branch decisions and error text.
// Node executors receive their own copy of the context and return it, so a
// context value is never shared between runs or between retry attempts.
type ExecutionContext struct {
	Data        map[string]any
	Metadata    map[string]any
	SessionID   string
	ExecutionID string
	Timestamp   time.Time
}

// NewExecutionContext returns a context for sessionID seeded with data.
// The data map is copied.
func NewExecutionContext(sessionID string, data map[string]any) *ExecutionContext {
	ec := &ExecutionContext{
		Data:      cloneMap(data),
		Metadata:  make(map[string]any),
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
	return ec
}

// Clone returns a copy whose maps, nested maps and slices can be mutated
// without affecting c.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	out := *c
	out.Data = cloneMap(c.Data)
	out.Metadata = cloneMap(c.Metadata)
	return &out
}

// String returns the data value at key when it is a string.
func (c *ExecutionContext) String(key string) string {
	s, _ := c.Data[key].(string)
	return s
}

// Flag reports whether metadata key holds boolean true.
func (c *ExecutionContext) Flag(key string) bool {
	b, _ := c.Metadata[key].(bool)
	return b
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}
