package graph

import (
	"testing"
	"time"

	"github.com/dshills/reviewgraph/graph/emit"
	"github.com/dshills/reviewgraph/graph/memory"
)

// TestNew_Defaults verifies DefaultOptions are applied.
func TestNew_Defaults(t *testing.T) {
	o, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := o.Options(); got != DefaultOptions() {
		t.Errorf("options = %+v", got)
	}
	if o.Memory().Capacity() != memory.DefaultCapacity {
		t.Errorf("capacity = %d", o.Memory().Capacity())
	}
}

// TestNew_InvalidOptions verifies option validation.
func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"max steps", WithMaxSteps(0)},
		{"memory capacity", WithMemoryCapacity(-1)},
		{"retry limit", WithDefaultRetryLimit(0)},
		{"negative backoff", WithBackoff(-time.Second, 0)},
		{"cap below base", WithBackoff(time.Minute, time.Second)},
		{"nil id generator", WithIDGenerator(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// TestNew_SharedMemory verifies WithMemory reuses the given store.
func TestNew_SharedMemory(t *testing.T) {
	shared := memory.New(4)
	a, _ := New(WithMemory(shared))
	b, _ := New(WithMemory(shared))

	a.Memory().Put("k", 1, nil)
	if _, ok := b.Memory().Get("k"); !ok {
		t.Error("store not shared")
	}
}

// TestNew_SharedMemoryEvictions verifies evictions from a shared store are
// reported by the orchestrator.
func TestNew_SharedMemoryEvictions(t *testing.T) {
	shared := memory.New(1)
	events := emit.NewBufferedEmitter()
	if _, err := New(WithMemory(shared), WithEmitter(events)); err != nil {
		t.Fatalf("New: %v", err)
	}

	shared.Put("a", 1, nil)
	shared.Put("b", 2, nil)

	got := events.HistoryWithFilter("", emit.HistoryFilter{Msg: emit.MsgEviction})
	if len(got) != 1 || got[0].Meta["key"] != "a" {
		t.Errorf("eviction events = %+v", got)
	}
}

// TestNew_WithOptions verifies a full replacement.
func TestNew_WithOptions(t *testing.T) {
	want := Options{MaxSteps: 7, MemoryCapacity: 3, DefaultRetryLimit: 2, DefaultNodeTimeout: time.Second, BackoffBase: time.Millisecond, BackoffMax: time.Second}
	o, err := New(WithOptions(want))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o.Options() != want || o.Memory().Capacity() != 3 {
		t.Errorf("options = %+v capacity = %d", o.Options(), o.Memory().Capacity())
	}
}
