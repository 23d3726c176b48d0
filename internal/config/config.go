// Package config loads aisanity tool settings from TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// ExecutorConfig holds process executor limits.
type ExecutorConfig struct {
	MaxConcurrent  int           `toml:"max_concurrent"`
	MaxOutputBytes int           `toml:"max_output_bytes"`
	KillGrace      time.Duration `toml:"kill_grace"`
	DefaultTimeout time.Duration `toml:"default_timeout"` // Zero means no timeout
}

// ConfirmationConfig holds confirmation prompt bounds.
type ConfirmationConfig struct {
	MinTimeout     time.Duration `toml:"min_timeout"`
	MaxTimeout     time.Duration `toml:"max_timeout"`
	DefaultTimeout time.Duration `toml:"default_timeout"`
	Countdown      bool          `toml:"countdown"`
}

// WorkflowConfig holds workflow loading and execution settings.
type WorkflowConfig struct {
	File          string `toml:"file"`
	MaxIterations int    `toml:"max_iterations"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// Config is the main configuration struct for aisanity.
type Config struct {
	Version      string             `toml:"version"`
	Executor     ExecutorConfig     `toml:"executor"`
	Confirmation ConfirmationConfig `toml:"confirmation"`
	Workflow     WorkflowConfig     `toml:"workflow"`
	Logging      LoggingConfig      `toml:"logging"`
}

// DefaultWorkflowFile is the definition file location relative to a workspace.
const DefaultWorkflowFile = ".aisanity-workflows.yml"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Executor: ExecutorConfig{
			MaxConcurrent:  10,
			MaxOutputBytes: 10 * 1024 * 1024,
			KillGrace:      3 * time.Second,
		},
		Confirmation: ConfirmationConfig{
			MinTimeout:     time.Second,
			MaxTimeout:     5 * time.Minute,
			DefaultTimeout: 30 * time.Second,
			Countdown:      true,
		},
		Workflow: WorkflowConfig{
			File:          DefaultWorkflowFile,
			MaxIterations: 1000,
		},
		Logging: LoggingConfig{
			Level:  LogLevelWarn,
			Format: LogFormatText,
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.aisanity/config.toml -> .aisanity/config.toml
// Later configs override earlier ones (project-level takes precedence).
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".aisanity", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".aisanity", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.max_concurrent must be positive")
	}
	if c.Executor.MaxOutputBytes <= 0 {
		return fmt.Errorf("executor.max_output_bytes must be positive")
	}
	if c.Executor.KillGrace < 0 {
		return fmt.Errorf("executor.kill_grace must not be negative")
	}
	if c.Confirmation.MinTimeout <= 0 {
		return fmt.Errorf("confirmation.min_timeout must be positive")
	}
	if c.Confirmation.MinTimeout > c.Confirmation.MaxTimeout {
		return fmt.Errorf("confirmation.min_timeout must not exceed confirmation.max_timeout")
	}
	if c.Workflow.File == "" {
		return fmt.Errorf("workflow.file is required")
	}
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow.max_iterations must be positive")
	}
	return nil
}

// WorkflowFile returns the absolute workflow definition path for a workspace.
func (c *Config) WorkflowFile(workspace string) string {
	if filepath.IsAbs(c.Workflow.File) {
		return c.Workflow.File
	}
	return filepath.Join(workspace, c.Workflow.File)
}

// LogFile returns the absolute log file path, or empty when logging to stderr only.
func (c *Config) LogFile(workspace string) string {
	if c.Logging.File == "" || filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	return filepath.Join(workspace, c.Logging.File)
}
