package autopilot

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AUTOPILOT_"

// Config holds the tunable parameters of a workflow run.
type Config struct {
	// MaxAttempts is the total number of tries a stage gets when it fails
	// with a transient error (first attempt included).
	MaxAttempts int `koanf:"max_attempts"`

	// BaseWait and MaxWait bound the exponential backoff between retries.
	BaseWait time.Duration `koanf:"base_wait"`
	MaxWait  time.Duration `koanf:"max_wait"`

	// StageTimeout is the wall-clock budget for one stage attempt. Zero
	// means no per-stage timeout.
	StageTimeout time.Duration `koanf:"stage_timeout"`

	// MaxReviewRounds bounds the review/iterate loop before the workflow
	// proceeds to implementation regardless of approval.
	MaxReviewRounds int `koanf:"max_review_rounds"`

	// MaxQuestions bounds how many blocking questions a single stage call
	// may raise before it fails as unresolvably ambiguous.
	MaxQuestions int `koanf:"max_questions"`

	// QueueCapacity is the mailbox depth for agent-to-agent messaging.
	QueueCapacity int `koanf:"queue_capacity"`

	// DocsDir is the root for research and plan documents.
	DocsDir string `koanf:"docs_dir"`

	// StateDir holds workflow checkpoint files.
	StateDir string `koanf:"state_dir"`

	// PromptsFile optionally overrides the built-in stage prompts.
	PromptsFile string `koanf:"prompts_file"`

	// WorkingDir is the repository the agent operates on. Empty means the
	// current directory.
	WorkingDir string `koanf:"working_dir"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseWait == 0 {
		c.BaseWait = 1 * time.Second
	}
	if c.MaxWait == 0 {
		c.MaxWait = 30 * time.Second
	}
	if c.MaxReviewRounds == 0 {
		c.MaxReviewRounds = 3
	}
	if c.MaxQuestions == 0 {
		c.MaxQuestions = 3
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultMailboxCapacity
	}
	if c.DocsDir == "" {
		c.DocsDir = "docs"
	}
	if c.StateDir == "" {
		c.StateDir = ".autopilot/state"
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseWait < 0 || c.MaxWait < 0 || c.StageTimeout < 0 {
		return fmt.Errorf("wait durations must not be negative")
	}
	if c.MaxReviewRounds < 1 {
		return fmt.Errorf("max_review_rounds must be at least 1, got %d", c.MaxReviewRounds)
	}
	if c.MaxQuestions < 0 {
		return fmt.Errorf("max_questions must not be negative, got %d", c.MaxQuestions)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity)
	}
	return nil
}

// LoadConfig loads configuration from an optional YAML file, then overrides
// with AUTOPILOT_* environment variables. Precedence, highest first:
//
//  1. Environment variables (AUTOPILOT_MAX_ATTEMPTS, AUTOPILOT_STATE_DIR, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty path skips the file entirely; a path that does not exist is an
// error.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Config keys are flat, so AUTOPILOT_MAX_ATTEMPTS maps to max_attempts.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}
