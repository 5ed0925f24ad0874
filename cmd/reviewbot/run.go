package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dshills/reviewgraph/graph/emit"
	"github.com/dshills/reviewgraph/graph/model"
	"github.com/dshills/reviewgraph/internal/config"
	"github.com/dshills/reviewgraph/internal/review"
)

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Review a pull request, or the sample files when no PR is configured",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "pr",
				Usage:   "Pull request number",
				Sources: cli.EnvVars("PR_NUMBER"),
			},
			&cli.StringFlag{
				Name:    "repository",
				Usage:   "Repository as owner/name",
				Sources: cli.EnvVars("GITHUB_REPOSITORY"),
			},
			&cli.StringFlag{
				Name:    "session",
				Usage:   "Session id (generated when empty)",
				Sources: cli.EnvVars("SESSION_ID"),
			},
			&cli.StringFlag{
				Name:    "project-type",
				Aliases: []string{"p"},
				Usage:   "Prompt profile to review with",
				Sources: cli.EnvVars("PROJECT_TYPE"),
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the markdown report to this path",
			},
			&cli.BoolFlag{
				Name:  "post",
				Usage: "Post the report as a PR comment",
			},
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Also set a commit status on the PR head",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Answer every stage with a canned reply instead of calling providers",
			},
			&cli.StringFlag{
				Name:  "events",
				Usage: "Print engine events to stderr (none, text, json)",
				Value: "none",
			},
			&cli.StringFlag{
				Name:  "events-file",
				Usage: "Write the run's engine events as JSON lines to this path",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "Write the graph and its run statistics as JSON to this path",
			},
		},
		Action: runReview,
	}
}

// applyRunFlags lets explicit flags override the configuration.
func applyRunFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("pr") {
		cfg.GitHub.PRNumber = cmd.Int("pr")
	}
	for flag, dst := range map[string]*string{
		"repository":   &cfg.GitHub.Repository,
		"session":      &cfg.Review.SessionID,
		"project-type": &cfg.Review.ProjectType,
		"report":       &cfg.Review.ReportPath,
	} {
		if v := cmd.String(flag); v != "" {
			*dst = v
		}
	}
	if cmd.Bool("post") {
		cfg.Review.PostComment = true
	}
}

func runReview(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var trace *emit.BufferedEmitter
	if cmd.String("events-file") != "" {
		trace = emit.NewBufferedEmitter()
	}
	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{
		events:    cmd.String("events"),
		eventsOut: os.Stderr,
		buffer:    trace,
	})
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	prompts, err := loadPrompts(cfg, logger)
	if err != nil {
		return err
	}

	var (
		models review.Models
		names  map[review.Stage]string
	)
	if cmd.Bool("dry-run") {
		models, names = dryRunModels()
	} else if models, names, err = stageModels(cfg.Providers, rt.tracker); err != nil {
		return err
	}

	opts := []review.Option{
		review.WithPrompts(prompts),
		review.WithLogger(logger),
		review.WithSettings(review.Settings{
			ProjectType: cfg.Review.ProjectType,
			MaxFiles:    cfg.Review.MaxFiles,
			MaxFileSize: cfg.Review.MaxFileSize,
			PostComment: cfg.Review.PostComment,
			SetStatus:   cmd.Bool("status"),
			MaxSteps:    cfg.Engine.MaxSteps,
			ModelNames:  names,
		}),
	}
	gh, err := newGitHubClient(cfg.GitHub, logger)
	if err != nil {
		return err
	}
	if gh != nil {
		opts = append(opts, review.WithGitHub(gh))
	}

	pipeline, err := review.New(rt.orch, models, opts...)
	if err != nil {
		return err
	}

	res, runErr := pipeline.Run(ctx, cfg.GitHub.PRNumber, cfg.Review.SessionID)
	if res != nil && res.Report != "" && cfg.Review.ReportPath != "" {
		if err := os.WriteFile(cfg.Review.ReportPath, []byte(res.Report), 0o644); err != nil {
			logger.Error("failed to write report", "path", cfg.Review.ReportPath, "error", err)
		} else {
			logger.Info("report written", "path", cfg.Review.ReportPath)
		}
	}
	if path := cmd.String("export"); path != "" {
		if err := rt.orch.ExportFile(path); err != nil {
			logger.Error("failed to export graph", "path", path, "error", err)
		}
	}
	if trace != nil && res != nil && res.ExecutionID != "" {
		if err := dumpEvents(cmd.String("events-file"), trace.History(res.ExecutionID)); err != nil {
			logger.Error("failed to write events", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(cmd.Root().Writer, res, rt.tracker)
	return nil
}

func dumpEvents(path string, events []emit.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	le := emit.NewLogEmitter(f, true)
	for _, ev := range events {
		le.Emit(ev)
	}
	return f.Close()
}

func printSummary(w io.Writer, res *review.Result, tracker *model.UsageTracker) {
	fmt.Fprintf(w, "Session:          %s\n", res.SessionID)
	fmt.Fprintf(w, "Execution:        %s\n", res.ExecutionID)
	fmt.Fprintf(w, "Duration:         %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Files analyzed:   %d\n", res.FilesAnalyzed)
	if res.DemoMode {
		fmt.Fprintln(w, "Mode:             demo")
	}
	if res.EarlyExit {
		fmt.Fprintf(w, "Early exit:       %s\n", res.ExitReason)
		return
	}
	fmt.Fprintf(w, "Pipeline success: %t\n", res.PipelineSuccess)
	fmt.Fprintf(w, "Posted to GitHub: %t\n", res.GitHubPosted)
	fmt.Fprintf(w, "Model usage:      %s\n", tracker)
}
