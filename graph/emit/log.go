package emit

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// LogEmitter writes one line per event, as text or as JSON.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter writes to writer, or stdout when writer is nil.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

type logLine struct {
	Time        string         `json:"time"`
	Msg         string         `json:"msg"`
	ExecutionID string         `json:"execution_id"`
	SessionID   string         `json:"session_id,omitempty"`
	Step        int            `json:"step"`
	NodeID      string         `json:"node_id,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(logLine{
		Time:        event.Time.UTC().Format(time.RFC3339Nano),
		Msg:         event.Msg,
		ExecutionID: event.ExecutionID,
		SessionID:   event.SessionID,
		Step:        event.Step,
		NodeID:      event.NodeID,
		Meta:        event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":%q}\n", "marshal event: "+err.Error())
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] execution=%s step=%d node=%s", event.Msg, event.ExecutionID, event.Step, event.NodeID)
	if len(event.Meta) > 0 {
		if meta, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", meta)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	fmt.Fprint(l.writer, "\n")
}
