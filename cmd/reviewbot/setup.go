package main

import (
	"io"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dshills/reviewgraph/internal/config"
)

// loadConfig reads --config and applies the logging flags on top of it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Observability.LogLevel = lvl
	}
	if f := cmd.String("log-format"); f != "" {
		cfg.Observability.LogFormat = f
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger and installs it as slog's default.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// setup loads the configuration and the logger every subcommand needs.
func setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(os.Stderr, cfg.Observability.LogLevel, cfg.Observability.LogFormat), nil
}
