package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// OTelEmitter turns each event into a short span named after the event
// message. Attributes are namespaced with "reviewgraph.".
type OTelEmitter struct {
	tracer   trace.Tracer
	provider trace.TracerProvider
}

// NewOTelEmitter creates an emitter from provider. A nil provider yields
// a no-op tracer.
func NewOTelEmitter(provider trace.TracerProvider) *OTelEmitter {
	if provider == nil {
		provider = noop.NewTracerProvider()
	}
	return &OTelEmitter{
		tracer:   provider.Tracer("github.com/dshills/reviewgraph/graph"),
		provider: provider,
	}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	opts := []trace.SpanStartOption{}
	if !event.Time.IsZero() {
		opts = append(opts, trace.WithTimestamp(event.Time))
	}
	_, span := o.tracer.Start(context.Background(), event.Msg, opts...)
	defer span.End()

	span.SetAttributes(
		attribute.String("reviewgraph.execution_id", event.ExecutionID),
		attribute.String("reviewgraph.session_id", event.SessionID),
		attribute.Int("reviewgraph.step", event.Step),
		attribute.String("reviewgraph.node_id", event.NodeID),
	)
	for key, value := range event.Meta {
		span.SetAttributes(metaAttribute("reviewgraph."+key, value))
	}

	if msg, ok := event.Meta["error"].(string); ok && msg != "" {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

// Flush forces export of buffered spans when the provider supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := o.provider.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func metaAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
