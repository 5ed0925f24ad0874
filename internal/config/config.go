// Package config loads the review bot configuration from YAML, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	yaml "go.yaml.in/yaml/v2"
)

// Duration is a time.Duration written as "300s" or "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full bot configuration.
type Config struct {
	GitHub        GitHubConfig        `yaml:"github"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Engine        EngineConfig        `yaml:"engine"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
	Review        ReviewConfig        `yaml:"review"`
}

// GitHubConfig selects the repository and pull request to review.
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository" validate:"omitempty,contains=/"`
	PRNumber   int    `yaml:"pr_number" validate:"gte=0"`
	BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
}

// Enabled reports whether enough is configured to talk to GitHub.
func (g GitHubConfig) Enabled() bool {
	return g.Token != "" && g.Repository != "" && g.PRNumber > 0
}

// ProviderConfig configures one AI provider.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ProvidersConfig configures the four review stages.
type ProvidersConfig struct {
	Gemini    ProviderConfig `yaml:"gemini"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	DeepSeek  ProviderConfig `yaml:"deepseek"`
}

// EngineConfig holds orchestrator limits.
type EngineConfig struct {
	MaxSteps       int      `yaml:"max_steps" validate:"gt=0"`
	MemoryCapacity int      `yaml:"memory_capacity" validate:"gt=0"`
	RetryLimit     int      `yaml:"retry_limit" validate:"gte=0,lte=10"`
	NodeTimeout    Duration `yaml:"node_timeout" validate:"gt=0"`
	BackoffBase    Duration `yaml:"backoff_base" validate:"gte=0"`
	BackoffMax     Duration `yaml:"backoff_max" validate:"gte=0"`
}

// ArchiveConfig selects where finished run records are kept.
type ArchiveConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite mysql"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver memory"`
}

// ObservabilityConfig controls logs, metrics and traces.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"oneof=text json"`
	MetricsAddr string `yaml:"metrics_addr"`
	Trace       bool   `yaml:"trace"`
}

// ReviewConfig controls the review pipeline.
type ReviewConfig struct {
	ProjectType string `yaml:"project_type" validate:"required"`
	PromptsFile string `yaml:"prompts_file"`
	MaxFileSize int    `yaml:"max_file_size" validate:"gt=0"`
	MaxFiles    int    `yaml:"max_files" validate:"gt=0"`
	PostComment bool   `yaml:"post_comment"`
	ReportPath  string `yaml:"report_path"`
	SessionID   string `yaml:"session_id"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Providers: ProvidersConfig{
			Gemini:    ProviderConfig{Model: "gemini-1.5-pro"},
			OpenAI:    ProviderConfig{Model: "gpt-4o"},
			Anthropic: ProviderConfig{Model: "claude-3-5-sonnet-20241022"},
			DeepSeek:  ProviderConfig{Model: "deepseek-chat"},
		},
		Engine: EngineConfig{
			MaxSteps:       100,
			MemoryCapacity: 1000,
			RetryLimit:     3,
			NodeTimeout:    Duration(300 * time.Second),
			BackoffBase:    Duration(time.Second),
			BackoffMax:     Duration(5 * time.Minute),
		},
		Archive: ArchiveConfig{Driver: "memory"},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Review: ReviewConfig{
			ProjectType: "general",
			MaxFileSize: 100_000,
			MaxFiles:    20,
			ReportPath:  "pipeline_report.md",
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// fills unset fields from Default. The result is validated.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and PR coordinates from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.GitHub.Token, "GITHUB_TOKEN")
	set(&c.GitHub.Repository, "GITHUB_REPOSITORY", "REPOSITORY")
	set(&c.Providers.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	set(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	set(&c.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY")

	var pr string
	set(&pr, "PR_NUMBER")
	if pr != "" {
		n, err := strconv.Atoi(strings.TrimSpace(pr))
		if err != nil {
			return fmt.Errorf("invalid PR_NUMBER %q: %w", pr, err)
		}
		c.GitHub.PRNumber = n
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
