package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/reviewgraph/graph/emit"
	"github.com/dshills/reviewgraph/graph/memory"
)

// Options holds the orchestrator-wide execution defaults.
type Options struct {
	// MaxSteps bounds a run when Execute is called with maxSteps <= 0.
	MaxSteps int

	// MemoryCapacity sizes the shared memory store when WithMemory is not used.
	MemoryCapacity int

	// DefaultRetryLimit applies to nodes declared without a retry limit.
	DefaultRetryLimit int

	// DefaultNodeTimeout applies to nodes declared without a timeout.
	DefaultNodeTimeout time.Duration

	// BackoffBase is the delay before the first retry; it doubles for each
	// following retry up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultOptions returns the defaults used by New.
func DefaultOptions() Options {
	return Options{
		MaxSteps:           DefaultMaxSteps,
		MemoryCapacity:     memory.DefaultCapacity,
		DefaultRetryLimit:  DefaultRetryLimit,
		DefaultNodeTimeout: DefaultNodeTimeout,
		BackoffBase:        DefaultBackoffBase,
		BackoffMax:         DefaultBackoffMax,
	}
}

// Option configures an Orchestrator.
type Option func(*engineConfig) error

type engineConfig struct {
	opts    Options
	memory  *memory.Store
	emitter emit.Emitter
	logger  *slog.Logger
	metrics *PrometheusMetrics
	archive Archive
	sleep   func(ctx context.Context, d time.Duration) error
	newID   func() string
	clock   func() time.Time
}

// WithOptions replaces every default at once.
func WithOptions(o Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = o
		return nil
	}
}

// WithMaxSteps sets the default step bound.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return fmt.Errorf("max steps must be positive, got %d", n)
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithMemoryCapacity sizes the memory store created by New.
func WithMemoryCapacity(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return fmt.Errorf("memory capacity must be positive, got %d", n)
		}
		cfg.opts.MemoryCapacity = n
		return nil
	}
}

// WithDefaultRetryLimit sets the attempts used by nodes that do not set one.
func WithDefaultRetryLimit(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 1 {
			return fmt.Errorf("retry limit must be at least 1, got %d", n)
		}
		cfg.opts.DefaultRetryLimit = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the attempt timeout used by nodes that do not
// set one.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithBackoff sets the retry delay base and cap. A zero base disables
// waiting between attempts.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(cfg *engineConfig) error {
		if base < 0 || maxDelay < 0 {
			return errors.New("backoff durations must not be negative")
		}
		if maxDelay > 0 && maxDelay < base {
			return fmt.Errorf("backoff cap %v is below base %v", maxDelay, base)
		}
		cfg.opts.BackoffBase = base
		cfg.opts.BackoffMax = maxDelay
		return nil
	}
}

// WithMemory shares an existing memory store. New installs its eviction
// hook on the store, so when several orchestrators share one store the
// last one created reports its evictions.
func WithMemory(m *memory.Store) Option {
	return func(cfg *engineConfig) error {
		cfg.memory = m
		return nil
	}
}

// WithEmitter receives run, node and eviction events.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.emitter = e
		return nil
	}
}

// WithLogger replaces slog.Default for warnings and run summaries.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithArchive copies each finished record to a durable archive. Archive
// failures are logged and never fail the run.
func WithArchive(a Archive) Option {
	return func(cfg *engineConfig) error {
		cfg.archive = a
		return nil
	}
}

// WithIDGenerator replaces the execution id generator.
func WithIDGenerator(fn func() string) Option {
	return func(cfg *engineConfig) error {
		if fn == nil {
			return errors.New("id generator must not be nil")
		}
		cfg.newID = fn
		return nil
	}
}
