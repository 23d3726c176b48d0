// Package logging provides structured logging infrastructure for aisanity.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aisanity/aisanity/internal/config"
)

// Verbosity is the CLI-selected override of the configured log level.
type Verbosity int

const (
	VerbosityDefault Verbosity = iota // Use the configured level
	VerbositySilent                   // Errors only
	VerbosityVerbose                  // Info and above
	VerbosityDebug                    // Everything
)

// VerbosityFromFlags resolves the --silent/--verbose/--debug flags.
// Debug wins over verbose, and both win over silent.
func VerbosityFromFlags(silent, verbose, debug bool) Verbosity {
	switch {
	case debug:
		return VerbosityDebug
	case verbose:
		return VerbosityVerbose
	case silent:
		return VerbositySilent
	default:
		return VerbosityDefault
	}
}

// NewFromConfig creates a new slog.Logger based on configuration.
// The workspace resolves a relative log file path.
func NewFromConfig(cfg *config.Config, workspace string, verbosity Verbosity) (*slog.Logger, io.Closer, error) {
	level := applyVerbosity(parseLevel(cfg.Logging.Level), verbosity)
	handler := newHandler(cfg.Logging.Format, os.Stderr, level)

	var closer io.Closer
	if cfg.Logging.File != "" {
		logPath := cfg.LogFile(workspace)

		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, err
		}

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		closer = file

		multi := io.MultiWriter(os.Stderr, file)
		handler = newHandler(cfg.Logging.Format, multi, level)
	}

	return slog.New(handler), closer, nil
}

// NewDefault creates a default logger writing to stderr.
func NewDefault() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// NewForTest creates a silent logger for tests.
func NewForTest() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// Discard returns a logger that drops everything. Components use it when
// constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// parseLevel converts config log level to slog.Level.
func parseLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelInfo:
		return slog.LevelInfo
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func applyVerbosity(level slog.Level, v Verbosity) slog.Level {
	switch v {
	case VerbositySilent:
		return slog.LevelError
	case VerbosityVerbose:
		return slog.LevelInfo
	case VerbosityDebug:
		return slog.LevelDebug
	default:
		return level
	}
}

// newHandler creates a slog.Handler based on format.
func newHandler(format config.LogFormat, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch format {
	case config.LogFormatJSON:
		return slog.NewJSONHandler(w, opts)
	case config.LogFormatText:
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// WithWorkflow returns a logger with workflow context.
func WithWorkflow(logger *slog.Logger, workflow string) *slog.Logger {
	return logger.With("workflow", workflow)
}

// WithState returns a logger with state context.
func WithState(logger *slog.Logger, state string) *slog.Logger {
	return logger.With("state", state)
}

// WithRun returns a logger with run context.
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}
