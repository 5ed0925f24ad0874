package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	cli "github.com/urfave/cli/v3"

	"github.com/dshills/reviewgraph/graph"
	"github.com/dshills/reviewgraph/graph/store"
	"github.com/dshills/reviewgraph/internal/review"
)

func newGraphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Print the review workflow graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "project-type",
				Aliases: []string{"p"},
				Usage:   "Prompt profile the graph is built with",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the graph export document instead of the text view",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("project-type") {
				cfg.Review.ProjectType = cmd.String("project-type")
			}
			prompts, err := loadPrompts(cfg, logger)
			if err != nil {
				return err
			}

			orch, err := graph.New(graph.WithLogger(logger))
			if err != nil {
				return err
			}
			models, _ := dryRunModels()
			if _, err := review.New(orch, models,
				review.WithPrompts(prompts),
				review.WithLogger(logger),
				review.WithSettings(review.Settings{ProjectType: cfg.Review.ProjectType}),
			); err != nil {
				return err
			}

			w := cmd.Root().Writer
			if cmd.Bool("json") {
				return orch.Export(w)
			}
			_, err = fmt.Fprint(w, orch.Visualize())
			return err
		},
	}
}

func newHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List archived runs, or print one run when an execution id is given",
		ArgsUsage: "[execution-id]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of most recent runs to list (0 lists all)",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			archive, err := store.Open(cfg.Archive.Driver, cfg.Archive.DSN)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer archive.Close()

			w := cmd.Root().Writer
			if id := cmd.Args().First(); id != "" {
				rec, err := archive.Record(ctx, id)
				if err != nil {
					return fmt.Errorf("execution %s: %w", id, err)
				}
				data, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}

			recs, err := archive.Records(ctx, cmd.Int("limit"))
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(w, "no archived runs")
				return nil
			}
			fmt.Fprintln(w, formatRecords(recs))
			return nil
		},
	}
}

func formatRecords(recs []graph.ExecutionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-14s  %-9s  %5s  %10s  %s\n", "EXECUTION", "SESSION", "STATUS", "STEPS", "DURATION", "STARTED")
	for _, r := range recs {
		fmt.Fprintf(&b, "%-36s  %-14s  %-9s  %5d  %10s  %s\n",
			r.ExecutionID, r.SessionID, r.Status, r.StepsExecuted,
			r.TotalDuration.Round(time.Millisecond), r.StartTime.UTC().Format(time.RFC3339))
	}
	return strings.TrimRight(b.String(), "\n")
}
