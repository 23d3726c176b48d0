package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aisanity/aisanity/internal/config"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/logging"
	"github.com/aisanity/aisanity/internal/status"
	"github.com/aisanity/aisanity/internal/workflow"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose bool
	debug   bool
	silent  bool
	jsonOut bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "aisanity",
	Short: "Run YAML-defined state machine workflows",
	Long: `aisanity runs workflows defined in .aisanity-workflows.yml at the
workspace root.

A workflow is a set of named states. Each state runs one command and moves
to the next state on success, failure or timeout. States may ask for
confirmation first, and commands take {placeholders} filled from built-in
variables (branch, workspace, timestamp) and key=value arguments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Without a subcommand, list available workflows
		return runLs(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "only log errors and print minimal output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "workspace directory (default: current)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("aisanity {{.Version}}\n")
}

// getWorkDir returns the effective workspace directory.
func getWorkDir() (string, error) {
	dir := workDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
	}
	return filepath.Abs(dir)
}

// session is the per-invocation setup shared by all commands.
type session struct {
	workspace string
	cfg       *config.Config
	logger    *slog.Logger
	closer    io.Closer
	loader    *workflow.Loader
}

func newSession() (*session, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.CodeFileInvalid, "loading config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, aerrors.Validation("config", err.Error())
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir, logging.VerbosityFromFlags(silent, verbose, debug))
	if err != nil {
		return nil, aerrors.Wrap(aerrors.CodeFilePermission, "opening log file", err)
	}

	return &session{
		workspace: dir,
		cfg:       cfg,
		logger:    logger,
		closer:    closer,
		loader:    workflow.NewLoader(cfg.Workflow.File, logger),
	}, nil
}

func (s *session) Close() {
	if s.closer != nil {
		s.closer.Close()
	}
}

// formatOptions derives rendering options from the global flags and w.
func formatOptions(w io.Writer) status.FormatOptions {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}
	return status.FormatOptions{
		NoColor: !color,
		Quiet:   silent,
		Verbose: verbose || debug,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
