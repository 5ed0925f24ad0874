package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by execution id.
// It backs tests and the CLI's end-of-run trace dump.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
	order  []string
}

// HistoryFilter narrows History results. Zero fields match everything.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter returns an empty buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.events[event.ExecutionID]; !seen {
		b.order = append(b.order, event.ExecutionID)
	}
	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

// Executions lists execution ids in the order their first event arrived.
func (b *BufferedEmitter) Executions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// History returns a copy of the events recorded for executionID.
func (b *BufferedEmitter) History(executionID string) []Event {
	return b.HistoryWithFilter(executionID, HistoryFilter{})
}

// HistoryWithFilter returns the events for executionID matching filter.
func (b *BufferedEmitter) HistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[executionID]))
	for _, event := range b.events[executionID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

func (f HistoryFilter) matches(event Event) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}

// Clear drops the events of executionID, or all events when it is empty.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if executionID == "" {
		b.events = make(map[string][]Event)
		b.order = nil
		return
	}
	delete(b.events, executionID)
	for i, id := range b.order {
		if id == executionID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
