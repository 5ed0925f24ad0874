package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v3"
	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/reviewgraph/internal/config"
	"github.com/dshills/reviewgraph/internal/review"
)

var errNoPromptsFile = errors.New("review.prompts_file is not configured")

// promptsAction loads the prompt store and hands it to fn. When fn
// reports a change the store is written back to the prompts file.
func promptsAction(fn func(ctx context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		ps, err := loadPrompts(cfg, logger)
		if err != nil {
			return err
		}
		changed, err := fn(ctx, cmd, ps)
		if err != nil || !changed {
			return err
		}
		return savePrompts(cfg, ps)
	}
}

func savePrompts(cfg *config.Config, ps *review.PromptStore) error {
	if cfg.Review.PromptsFile == "" {
		return errNoPromptsFile
	}
	return ps.SaveFile(cfg.Review.PromptsFile)
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return v, nil
}

func newPromptsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Manage prompt profiles per project type",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List project types",
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					w := cmd.Root().Writer
					for _, name := range ps.Names() {
						marker := " "
						if name == ps.Active() {
							marker = "*"
						}
						p, _ := ps.Profile(name)
						fmt.Fprintf(w, "%s %-20s %s\n", marker, name, p.Description)
					}
					return false, nil
				}),
			},
			{
				Name:      "show",
				Usage:     "Print the resolved prompts of a project type",
				ArgsUsage: "[project-type]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "stage", Usage: "Only this stage (stage_1 .. stage_4)"},
				},
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					p, err := ps.Resolve(cmd.Args().First())
					if err != nil {
						return false, err
					}
					var v any = p
					if s := cmd.String("stage"); s != "" {
						st, err := review.ParseStage(s)
						if err != nil {
							return false, err
						}
						v = p.Prompt(st)
					}
					out, err := yaml.Marshal(v)
					if err != nil {
						return false, err
					}
					_, err = cmd.Root().Writer.Write(out)
					return false, err
				}),
			},
			{
				Name:      "activate",
				Usage:     "Make a project type the default",
				ArgsUsage: "<project-type>",
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					name, err := requireArg(cmd, "project type")
					if err != nil {
						return false, err
					}
					return true, ps.SetActive(name)
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a custom project type inheriting from another",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Profile description"},
					&cli.StringFlag{Name: "base", Aliases: []string{"b"}, Usage: "Project type to inherit from", Value: review.ProjectGeneral},
				},
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return false, err
					}
					key, err := ps.CreateCustom(name, cmd.String("description"), cmd.String("base"))
					if err != nil {
						return false, err
					}
					fmt.Fprintf(cmd.Root().Writer, "created project type %s\n", key)
					return true, nil
				}),
			},
			{
				Name:      "customize",
				Usage:     "Replace the system prompt of one stage",
				ArgsUsage: "<project-type>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "stage", Usage: "Stage to change (stage_1 .. stage_4)", Required: true},
					&cli.StringFlag{Name: "system-prompt", Usage: "New system prompt", Required: true},
					&cli.StringSliceFlag{Name: "focus", Usage: "Focus area (repeatable); replaces the current list"},
				},
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					name, err := requireArg(cmd, "project type")
					if err != nil {
						return false, err
					}
					st, err := review.ParseStage(cmd.String("stage"))
					if err != nil {
						return false, err
					}
					return true, ps.Customize(name, st, cmd.String("system-prompt"), cmd.StringSlice("focus"))
				}),
			},
			{
				Name:      "export",
				Usage:     "Write every profile to a YAML file",
				ArgsUsage: "<path>",
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					path, err := requireArg(cmd, "path")
					if err != nil {
						return false, err
					}
					return false, ps.SaveFile(path)
				}),
			},
			{
				Name:      "import",
				Usage:     "Merge profiles from a YAML file into the prompts file",
				ArgsUsage: "<path>",
				Action: promptsAction(func(_ context.Context, cmd *cli.Command, ps *review.PromptStore) (bool, error) {
					path, err := requireArg(cmd, "path")
					if err != nil {
						return false, err
					}
					return true, ps.LoadFile(path)
				}),
			},
		},
	}
}
