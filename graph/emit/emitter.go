// Package emit delivers orchestrator events to logs, traces and buffers.
package emit

// Emitter receives events. Implementations must be safe for concurrent
// use and must not block the run for long.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter forwards each event to every wrapped emitter in order.
type MultiEmitter []Emitter

// Multi combines emitters, skipping nil entries.
func Multi(emitters ...Emitter) MultiEmitter {
	out := make(MultiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Emit implements Emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
