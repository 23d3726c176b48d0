package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != "1" {
		t.Errorf("Version = %s, want 1", cfg.Version)
	}
	if cfg.Workflow.File != ".aisanity-workflows.yml" {
		t.Errorf("Workflow.File = %s, want .aisanity-workflows.yml", cfg.Workflow.File)
	}
	if cfg.Workflow.MaxIterations != 1000 {
		t.Errorf("MaxIterations = %d, want 1000", cfg.Workflow.MaxIterations)
	}
	if cfg.Executor.KillGrace != 3*time.Second {
		t.Errorf("KillGrace = %v, want 3s", cfg.Executor.KillGrace)
	}
	if cfg.Confirmation.MinTimeout != time.Second || cfg.Confirmation.MaxTimeout != 5*time.Minute {
		t.Errorf("confirmation bounds = [%v, %v], want [1s, 5m]", cfg.Confirmation.MinTimeout, cfg.Confirmation.MaxTimeout)
	}
	if cfg.Logging.Level != LogLevelWarn {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
version = "2"

[executor]
max_concurrent = 3
kill_grace = "500ms"
default_timeout = "2m"

[confirmation]
min_timeout = "2s"
countdown = false

[workflow]
max_iterations = 50

[logging]
level = "debug"
format = "json"
`

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Version != "2" {
		t.Errorf("Version = %s, want 2", cfg.Version)
	}
	if cfg.Executor.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.Executor.MaxConcurrent)
	}
	if cfg.Executor.KillGrace != 500*time.Millisecond {
		t.Errorf("KillGrace = %v, want 500ms", cfg.Executor.KillGrace)
	}
	if cfg.Executor.DefaultTimeout != 2*time.Minute {
		t.Errorf("DefaultTimeout = %v, want 2m", cfg.Executor.DefaultTimeout)
	}
	if cfg.Confirmation.MinTimeout != 2*time.Second {
		t.Errorf("MinTimeout = %v, want 2s", cfg.Confirmation.MinTimeout)
	}
	if cfg.Confirmation.Countdown {
		t.Error("Countdown should be disabled")
	}
	// Untouched keys keep their defaults
	if cfg.Confirmation.MaxTimeout != 5*time.Minute {
		t.Errorf("MaxTimeout = %v, want default 5m", cfg.Confirmation.MaxTimeout)
	}
	if cfg.Workflow.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", cfg.Workflow.MaxIterations)
	}
	if cfg.Logging.Level != LogLevelDebug {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load should not fail for non-existent file: %v", err)
	}

	if cfg.Version != "1" {
		t.Errorf("Should return defaults, got version = %s", cfg.Version)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `invalid = [toml content`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail for invalid TOML")
	}
}

func TestLoad_ReadError(t *testing.T) {
	// Reading a directory fails with a read error, not "not found"
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Error("Load should fail when trying to read a directory")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Run("project-local config", func(t *testing.T) {
		dir := t.TempDir()
		cfgDir := filepath.Join(dir, ".aisanity")
		if err := os.MkdirAll(cfgDir, 0755); err != nil {
			t.Fatalf("Failed to create .aisanity dir: %v", err)
		}

		content := `version = "project-local"`
		if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("LoadFromDir failed: %v", err)
		}

		if cfg.Version != "project-local" {
			t.Errorf("Version = %s, want project-local", cfg.Version)
		}
	})

	t.Run("no config file - uses defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		dir := t.TempDir()

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("LoadFromDir failed: %v", err)
		}

		if cfg.Version != "1" {
			t.Errorf("Version = %s, want 1 (default)", cfg.Version)
		}
	})

	t.Run("invalid project config", func(t *testing.T) {
		dir := t.TempDir()
		cfgDir := filepath.Join(dir, ".aisanity")
		if err := os.MkdirAll(cfgDir, 0755); err != nil {
			t.Fatalf("Failed to create .aisanity dir: %v", err)
		}

		if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(`invalid = [toml`), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		if _, err := LoadFromDir(dir); err == nil {
			t.Error("LoadFromDir should fail with invalid TOML")
		}
	})

	t.Run("project overrides user global config", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		globalDir := filepath.Join(home, ".aisanity")
		if err := os.MkdirAll(globalDir, 0755); err != nil {
			t.Fatalf("Failed to create global dir: %v", err)
		}
		global := "version = \"user-global\"\n[workflow]\nmax_iterations = 7\n"
		if err := os.WriteFile(filepath.Join(globalDir, "config.toml"), []byte(global), 0644); err != nil {
			t.Fatalf("Failed to write global config: %v", err)
		}

		dir := t.TempDir()
		projectDir := filepath.Join(dir, ".aisanity")
		if err := os.MkdirAll(projectDir, 0755); err != nil {
			t.Fatalf("Failed to create project dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(projectDir, "config.toml"), []byte(`version = "project"`), 0644); err != nil {
			t.Fatalf("Failed to write project config: %v", err)
		}

		cfg, err := LoadFromDir(dir)
		if err != nil {
			t.Fatalf("LoadFromDir failed: %v", err)
		}

		if cfg.Version != "project" {
			t.Errorf("Version = %s, want project", cfg.Version)
		}
		if cfg.Workflow.MaxIterations != 7 {
			t.Errorf("MaxIterations = %d, want 7 from global config", cfg.Workflow.MaxIterations)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, wantErr: true},
		{name: "zero max_concurrent", mutate: func(c *Config) { c.Executor.MaxConcurrent = 0 }, wantErr: true},
		{name: "zero max_output_bytes", mutate: func(c *Config) { c.Executor.MaxOutputBytes = 0 }, wantErr: true},
		{name: "negative kill_grace", mutate: func(c *Config) { c.Executor.KillGrace = -time.Second }, wantErr: true},
		{name: "zero min_timeout", mutate: func(c *Config) { c.Confirmation.MinTimeout = 0 }, wantErr: true},
		{
			name: "min above max",
			mutate: func(c *Config) {
				c.Confirmation.MinTimeout = time.Hour
				c.Confirmation.MaxTimeout = time.Minute
			},
			wantErr: true,
		},
		{name: "missing workflow file", mutate: func(c *Config) { c.Workflow.File = "" }, wantErr: true},
		{name: "zero max_iterations", mutate: func(c *Config) { c.Workflow.MaxIterations = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_PathHelpers(t *testing.T) {
	cfg := Default()
	baseDir := "/project"

	if got := cfg.WorkflowFile(baseDir); got != "/project/.aisanity-workflows.yml" {
		t.Errorf("WorkflowFile = %s, want /project/.aisanity-workflows.yml", got)
	}
	if got := cfg.LogFile(baseDir); got != "" {
		t.Errorf("LogFile = %s, want empty", got)
	}

	cfg.Workflow.File = "/absolute/workflows.yml"
	if got := cfg.WorkflowFile(baseDir); got != "/absolute/workflows.yml" {
		t.Errorf("WorkflowFile (abs) = %s, want /absolute/workflows.yml", got)
	}

	cfg.Logging.File = "logs/aisanity.log"
	if got := cfg.LogFile(baseDir); got != "/project/logs/aisanity.log" {
		t.Errorf("LogFile = %s, want /project/logs/aisanity.log", got)
	}
}
