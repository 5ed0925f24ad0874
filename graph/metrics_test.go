package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestPrometheusMetrics_Run verifies counters move with a run.
func TestPrometheusMetrics_Run(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)
	o, _ := newTestOrchestrator(t, WithMetrics(m), WithMemoryCapacity(1))

	f := &flakyTransform{failures: 1}
	mustNil(t, o.AddTransform("flaky", f.run))
	mustNil(t, o.AddCondition("gate", func(map[string]any) bool { return true }, "ghost", ""))
	mustNil(t, o.AddAICall("ai", func(context.Context, string, string) (string, error) { return "x", nil }, "", "p"))
	mustNil(t, o.Connect("flaky", "gate"))

	_, err := o.Execute(context.Background(), "flaky", nil, 5)
	mustNil(t, err)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed runs = %v", got)
	}
	if got := testutil.ToFloat64(m.retries.WithLabelValues("flaky", "error")); got != 1 {
		t.Errorf("retries = %v", got)
	}
	if got := testutil.ToFloat64(m.skipped); got != 1 {
		t.Errorf("skipped = %v", got)
	}
	if got := testutil.ToFloat64(m.inflightRuns); got != 0 {
		t.Errorf("inflight = %v", got)
	}

	// two sessions through a capacity-1 store force one eviction
	_, _ = o.Execute(context.Background(), "ai", NewExecutionContext("s1", nil), 1)
	_, _ = o.Execute(context.Background(), "ai", NewExecutionContext("s2", nil), 1)
	if got := testutil.ToFloat64(m.evictions); got != 1 {
		t.Errorf("evictions = %v", got)
	}
	if got := testutil.ToFloat64(m.memEntries); got != 1 {
		t.Errorf("memory entries = %v", got)
	}
	if got := testutil.CollectAndCount(m.stepLatency); got == 0 {
		t.Error("no latency observations")
	}
}

// TestPrometheusMetrics_Disable verifies recording can be paused.
func TestPrometheusMetrics_Disable(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	m.Disable()
	m.RunFinished(RunFailed)
	m.IncrementSkipped()

	if got := testutil.ToFloat64(m.skipped); got != 0 {
		t.Errorf("skipped = %v while disabled", got)
	}

	m.Enable()
	m.IncrementSkipped()
	if got := testutil.ToFloat64(m.skipped); got != 1 {
		t.Errorf("skipped = %v after enable", got)
	}

	m.SetMemoryEntries(5)
	m.Reset()
	if got := testutil.ToFloat64(m.memEntries); got != 0 {
		t.Errorf("memory gauge = %v after reset", got)
	}
}

// TestPrometheusMetrics_Nil verifies a nil collector is inert.
func TestPrometheusMetrics_Nil(t *testing.T) {
	var m *PrometheusMetrics
	m.RunStarted()
	m.RunFinished(RunCompleted)
	m.IncrementRetries("n", "error")
	m.RecordStepLatency("n", 0, StepFailed)
}

// TestPrometheusMetrics_Failure verifies failed runs are labelled.
func TestPrometheusMetrics_Failure(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	o, _ := newTestOrchestrator(t, WithMetrics(m), WithDefaultRetryLimit(1))
	mustNil(t, o.AddTransform("bad", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("no")
	}))

	_, _ = o.Execute(context.Background(), "bad", nil, 1)
	if got := testutil.ToFloat64(m.runs.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
}
