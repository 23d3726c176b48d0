package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aisanity/aisanity/internal/cli"
	"github.com/aisanity/aisanity/internal/confirm"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/executor"
	"github.com/aisanity/aisanity/internal/status"
	"github.com/aisanity/aisanity/internal/template"
	"github.com/aisanity/aisanity/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run [workflow] [state] [key=value...]",
	Short: "Run a workflow",
	Long: `Run a workflow from the definition file, starting at its initial state
or at the named state.

Arguments of the form key=value fill {key} placeholders in commands.
Without a workflow name on a terminal, a numbered list is shown.

Examples:
  aisanity run deploy
  aisanity run deploy confirm env=staging
  aisanity run deploy --dry-run env=prod
  aisanity run deploy --yes`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

var (
	runYes bool
	runDry bool
)

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "skip confirmation prompts")
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "show the execution path without running commands")
	rootCmd.AddCommand(runCmd)
}

// runTarget is what the positional arguments of run resolve to.
type runTarget struct {
	workflow string
	state    string
	params   map[string]string
}

func parseRunArgs(args []string) (*runTarget, error) {
	params, positional := template.ParseCLIParams(args)
	t := &runTarget{params: params}
	if len(positional) > 0 {
		t.workflow = positional[0]
	}
	if len(positional) > 1 {
		t.state = positional[1]
	}
	if len(positional) > 2 {
		return nil, aerrors.InvalidArgument(positional[2], "unexpected argument; template variables must be key=value")
	}
	return t, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	target, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := executor.New(executor.WithConfig(s.cfg.Executor), executor.WithLogger(s.logger))
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Executor.KillGrace+time.Second)
		defer cancel()
		if err := exec.Cleanup(cleanupCtx); err != nil {
			s.logger.Warn("cleanup failed", "error", err)
		}
	}()

	if target.workflow == "" {
		name, err := selectWorkflow(ctx, s, exec)
		if err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		target.workflow = name
	}

	w, err := s.loader.GetWorkflow(target.workflow, s.workspace)
	if err != nil {
		return err
	}

	confirmOpts := []confirm.Option{
		confirm.WithConfig(s.cfg.Confirmation),
		confirm.WithLogger(s.logger),
	}
	if s.cfg.Confirmation.Countdown {
		confirmOpts = append(confirmOpts, confirm.WithCountdown(confirm.TerminalCountdown(os.Stderr)))
	}

	processor := template.NewProcessor(
		template.NewBuiltinResolver(s.workspace, template.WithLogger(s.logger)),
		s.logger,
	)

	m, err := workflow.New(ctx, w,
		workflow.WithRunner(exec),
		workflow.WithConfirmer(confirm.New(exec, confirmOpts...)),
		workflow.WithProcessor(processor),
		workflow.WithParams(target.params),
		workflow.WithMaxIterations(s.cfg.Workflow.MaxIterations),
		workflow.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	if target.state != "" {
		if err := m.SetCurrentState(target.state); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	opts := workflow.ExecOptions{Yes: runYes}

	if runDry {
		sim, err := m.SimulateExecution(ctx, opts)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(out, sim)
		}
		fmt.Fprint(out, status.FormatSimulation(sim, formatOptions(out)))
		return nil
	}

	result, runErr := m.Execute(ctx, opts)
	if jsonOut {
		if err := writeJSON(out, result); err != nil {
			return err
		}
		return runErr
	}

	fo := formatOptions(out)
	fo.Verbose = !silent
	fmt.Fprintln(out, strings.TrimRight(status.FormatRunSummary(status.NewRunSummary(result), fo), "\n"))
	return runErr
}

// selectWorkflow asks for a workflow on the terminal. It returns "" when
// the user cancels.
func selectWorkflow(ctx context.Context, s *session, exec *executor.Executor) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return "", aerrors.InvalidArgument("workflow", "a workflow name is required")
	}

	defs, err := s.loader.Load(s.workspace)
	if err != nil {
		return "", err
	}

	var options []cli.SelectOption
	for _, name := range defs.Names() {
		label := name
		if d := defs.Workflows[name].Description; d != "" {
			label = fmt.Sprintf("%s - %s", name, d)
		}
		options = append(options, cli.SelectOption{Value: name, Label: label})
	}
	return exec.ExecuteSelection(ctx, "Select a workflow to run:", options)
}
