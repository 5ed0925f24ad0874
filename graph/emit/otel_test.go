package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exporter
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

// TestOTelEmitter_Emit verifies one span per event with standard attributes.
func TestOTelEmitter_Emit(t *testing.T) {
	tp, exporter := newTestProvider(t)
	emitter := NewOTelEmitter(tp)

	emitter.Emit(Event{
		ExecutionID: "exec-1",
		SessionID:   "sess-1",
		Step:        3,
		NodeID:      "stage_1_gemini",
		Msg:         MsgNodeEnd,
		Time:        time.Now(),
		Meta: map[string]any{
			"kind":        "ai_call",
			"attempt":     2,
			"duration_ms": int64(40),
			"completed":   true,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != MsgNodeEnd {
		t.Errorf("span name = %q", spans[0].Name)
	}

	attrs := attributeMap(spans[0].Attributes)
	want := map[string]interface{}{
		"reviewgraph.execution_id": "exec-1",
		"reviewgraph.session_id":   "sess-1",
		"reviewgraph.step":         int64(3),
		"reviewgraph.node_id":      "stage_1_gemini",
		"reviewgraph.kind":         "ai_call",
		"reviewgraph.attempt":      int64(2),
		"reviewgraph.duration_ms":  int64(40),
		"reviewgraph.completed":    true,
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, attrs[k], attrs[k], v)
		}
	}
}

// TestOTelEmitter_Error verifies error events mark the span as failed.
func TestOTelEmitter_Error(t *testing.T) {
	tp, exporter := newTestProvider(t)
	emitter := NewOTelEmitter(tp)

	emitter.Emit(Event{ExecutionID: "e", NodeID: "n", Msg: MsgNodeError, Meta: map[string]any{"error": "provider down"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "provider down" {
		t.Errorf("description = %q", spans[0].Status.Description)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event")
	}
}

// TestOTelEmitter_NilProvider verifies the no-op fallback.
func TestOTelEmitter_NilProvider(t *testing.T) {
	emitter := NewOTelEmitter(nil)
	emitter.Emit(Event{ExecutionID: "e", Msg: MsgRunStart})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
}

// TestOTelEmitter_Flush verifies batched spans are exported on Flush.
func TestOTelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(time.Hour)))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp)
	emitter.Emit(Event{ExecutionID: "e", Msg: MsgRunStart})
	emitter.Emit(Event{ExecutionID: "e", Msg: MsgRunEnd})

	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 2 {
		t.Errorf("exported %d spans, want 2", got)
	}
}
