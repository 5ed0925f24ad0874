package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics instruments the orchestrator. All series live in the
// "reviewgraph" namespace:
//
//	runs_total{status}                  finished runs by outcome
//	inflight_runs                       runs currently executing
//	step_latency_ms{node_id,status}     node visit duration
//	retries_total{node_id,reason}       retry attempts (reason: error, timeout)
//	skipped_nodes_total                 dangling successors skipped
//	memory_entries                      memory store size after each write
//	memory_evictions_total              entries evicted from the memory store
//
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	runs         *prometheus.CounterVec
	inflightRuns prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	skipped      prometheus.Counter
	memEntries   prometheus.Gauge
	evictions    prometheus.Counter

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers the collectors with registry, or with
// prometheus.DefaultRegisterer when registry is nil.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Name:      "runs_total",
			Help:      "Finished workflow runs by status",
		}, []string{"status"}),
		inflightRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewgraph",
			Name:      "inflight_runs",
			Help:      "Workflow runs currently executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reviewgraph",
			Name:      "step_latency_ms",
			Help:      "Node visit duration in milliseconds, retries included",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000, 120000},
		}, []string{"node_id", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Name:      "retries_total",
			Help:      "Node retry attempts",
		}, []string{"node_id", "reason"}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Name:      "skipped_nodes_total",
			Help:      "Successor ids skipped because no node was declared for them",
		}),
		memEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewgraph",
			Name:      "memory_entries",
			Help:      "Entries held by the shared memory store",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewgraph",
			Name:      "memory_evictions_total",
			Help:      "Entries evicted from the shared memory store",
		}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RunStarted increments the in-flight gauge.
func (pm *PrometheusMetrics) RunStarted() {
	if !pm.on() {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished records a run outcome and decrements the in-flight gauge.
func (pm *PrometheusMetrics) RunFinished(status RunStatus) {
	if !pm.on() {
		return
	}
	pm.inflightRuns.Dec()
	pm.runs.WithLabelValues(string(status)).Inc()
}

// RecordStepLatency observes one node visit.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status StepStatus) {
	if !pm.on() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, string(status)).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts one retry of nodeID.
func (pm *PrometheusMetrics) IncrementRetries(nodeID, reason string) {
	if !pm.on() {
		return
	}
	pm.retries.WithLabelValues(nodeID, reason).Inc()
}

// IncrementSkipped counts one dangling successor.
func (pm *PrometheusMetrics) IncrementSkipped() {
	if !pm.on() {
		return
	}
	pm.skipped.Inc()
}

// SetMemoryEntries reports the memory store size.
func (pm *PrometheusMetrics) SetMemoryEntries(n int) {
	if !pm.on() {
		return
	}
	pm.memEntries.Set(float64(n))
}

// IncrementEvictions counts one memory eviction.
func (pm *PrometheusMetrics) IncrementEvictions() {
	if !pm.on() {
		return
	}
	pm.evictions.Inc()
}

// Disable stops recording until Enable is called.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset zeroes the gauges.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightRuns.Set(0)
	pm.memEntries.Set(0)
}
