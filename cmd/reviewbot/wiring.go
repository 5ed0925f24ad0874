package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/dshills/reviewgraph/graph"
	"github.com/dshills/reviewgraph/graph/emit"
	"github.com/dshills/reviewgraph/graph/model"
	"github.com/dshills/reviewgraph/graph/model/anthropic"
	"github.com/dshills/reviewgraph/graph/model/deepseek"
	"github.com/dshills/reviewgraph/graph/model/google"
	"github.com/dshills/reviewgraph/graph/model/openai"
	"github.com/dshills/reviewgraph/graph/store"
	"github.com/dshills/reviewgraph/internal/config"
	"github.com/dshills/reviewgraph/internal/github"
	"github.com/dshills/reviewgraph/internal/review"
)

const serviceName = "reviewbot"

// runtime owns everything a pipeline run needs besides the pipeline
// itself. Close releases it in reverse order of creation.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	orch    *graph.Orchestrator
	archive store.Archive
	tracker *model.UsageTracker
	closers []func(context.Context) error
}

// runtimeOptions are the per-invocation knobs not covered by the config.
type runtimeOptions struct {
	events    string // none, text or json
	eventsOut io.Writer
	buffer    *emit.BufferedEmitter
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, ro runtimeOptions) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logger, tracker: model.NewUsageTracker()}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
		}
	}()

	rt.archive, err = store.Open(cfg.Archive.Driver, cfg.Archive.DSN)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	archive := rt.archive
	rt.closers = append(rt.closers, func(context.Context) error { return archive.Close() })

	eng := cfg.Engine
	opts := []graph.Option{
		graph.WithLogger(logger.With("module", "graph")),
		graph.WithArchive(rt.archive),
		graph.WithMaxSteps(eng.MaxSteps),
		graph.WithMemoryCapacity(eng.MemoryCapacity),
		graph.WithDefaultRetryLimit(eng.RetryLimit),
		graph.WithDefaultNodeTimeout(eng.NodeTimeout.Std()),
		graph.WithBackoff(eng.BackoffBase.Std(), eng.BackoffMax.Std()),
	}

	var emitters []emit.Emitter
	switch ro.events {
	case "text", "json":
		emitters = append(emitters, emit.NewLogEmitter(ro.eventsOut, ro.events == "json"))
	case "", "none":
	default:
		return nil, fmt.Errorf("unknown events format %q", ro.events)
	}

	if ro.buffer != nil {
		emitters = append(emitters, ro.buffer)
	}

	obs := cfg.Observability
	if obs.Trace {
		tp, err := newTracerProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("start tracing: %w", err)
		}
		rt.closers = append(rt.closers, tp.Shutdown)
		emitters = append(emitters, emit.NewOTelEmitter(tp))
	}
	if len(emitters) > 0 {
		opts = append(opts, graph.WithEmitter(emit.Multi(emitters...)))
	}

	if obs.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, graph.WithMetrics(graph.NewPrometheusMetrics(reg)))
		rt.closers = append(rt.closers, serveMetrics(obs.MetricsAddr, reg, logger))
	}

	rt.orch, err = graph.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	return rt, nil
}

// Close shuts down tracing, the metrics server and the archive.
func (rt *runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.Warn("shutdown failed", "error", err)
		}
	}
	rt.closers = nil
}

func newTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(review.PipelineVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Endpoint and headers come from the OTEL_EXPORTER_OTLP_* variables.
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv.Shutdown
}

// stageModels creates the chat model of every stage, each wrapped for
// usage tracking. It fails on the first provider without an API key.
func stageModels(p config.ProvidersConfig, tracker *model.UsageTracker) (review.Models, map[review.Stage]string, error) {
	type entry struct {
		st     review.Stage
		env    string
		cfg    config.ProviderConfig
		create func(key, name string) model.ChatModel
	}
	entries := []entry{
		{review.StageAnalysis, "GEMINI_API_KEY", p.Gemini, func(k, n string) model.ChatModel { return google.NewChatModel(k, n) }},
		{review.StageGeneration, "OPENAI_API_KEY", p.OpenAI, func(k, n string) model.ChatModel { return openai.NewChatModel(k, n) }},
		{review.StageIntegration, "ANTHROPIC_API_KEY", p.Anthropic, func(k, n string) model.ChatModel { return anthropic.NewChatModel(k, n) }},
		{review.StageVerification, "DEEPSEEK_API_KEY", p.DeepSeek, func(k, n string) model.ChatModel { return deepseek.NewChatModel(k, n) }},
	}

	built := make(map[review.Stage]model.ChatModel, len(entries))
	names := make(map[review.Stage]string, len(entries))
	for _, e := range entries {
		if e.cfg.APIKey == "" {
			return review.Models{}, nil, fmt.Errorf("%s: no API key (set %s)", e.st, e.env)
		}
		built[e.st] = model.Tracked(e.create(e.cfg.APIKey, e.cfg.Model), e.cfg.Model, tracker)
		names[e.st] = e.cfg.Model
	}

	return review.Models{
		Analysis:     built[review.StageAnalysis],
		Generation:   built[review.StageGeneration],
		Integration:  built[review.StageIntegration],
		Verification: built[review.StageVerification],
	}, names, nil
}

// newGitHubClient returns nil when no token, repository or PR is
// configured; the pipeline then runs on sample files.
func newGitHubClient(gh config.GitHubConfig, logger *slog.Logger) (*github.Client, error) {
	if !gh.Enabled() {
		return nil, nil
	}
	opts := []github.Option{github.WithLogger(logger.With("module", "github"))}
	if gh.BaseURL != "" {
		opts = append(opts, github.WithBaseURL(gh.BaseURL))
	}
	return github.NewClient(gh.Token, gh.Repository, opts...)
}

// loadPrompts returns the built-in profiles plus the configured prompts
// file, when it exists.
func loadPrompts(cfg *config.Config, logger *slog.Logger) (*review.PromptStore, error) {
	ps := review.NewPromptStore(logger)
	path := cfg.Review.PromptsFile
	if path == "" {
		return ps, nil
	}
	if err := ps.LoadFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("prompts file not found, using built-in profiles", "path", path)
			return ps, nil
		}
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return ps, nil
}
