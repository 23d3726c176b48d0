package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aisanity/aisanity/internal/executor"
)

// Call records one invocation of FakeExecutor.Execute.
type Call struct {
	Command string
	Args    []string
	Options executor.Options
}

// Line returns the command and args joined by spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// FakeExecutor stands in for the process executor without spawning
// anything. Exit codes are looked up by full command line first, then by
// command name, then DefaultExit.
type FakeExecutor struct {
	mu    sync.Mutex
	calls []Call

	ExitCodes   map[string]int
	DefaultExit int

	// Handler, when set, replaces the exit code lookup entirely.
	Handler func(ctx context.Context, call Call) (*executor.Result, error)

	// ConfirmExit is the prompt's exit code: 0 yes, 1 no.
	ConfirmExit int
	// ConfirmHang blocks prompts until their context ends.
	ConfirmHang bool
	prompts     []string
}

// Execute implements the workflow command runner.
func (f *FakeExecutor) Execute(ctx context.Context, command string, args []string, opts executor.Options) (*executor.Result, error) {
	call := Call{Command: command, Args: append([]string(nil), args...), Options: opts}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.Handler
	f.mu.Unlock()

	if handler != nil {
		return handler(ctx, call)
	}

	code := f.DefaultExit
	if c, ok := f.ExitCodes[call.Line()]; ok {
		code = c
	} else if c, ok := f.ExitCodes[command]; ok {
		code = c
	}
	return &executor.Result{ExitCode: code, Stdout: call.Line() + "\n"}, nil
}

// ExecuteConfirmation implements confirm.Runner.
func (f *FakeExecutor) ExecuteConfirmation(ctx context.Context, message string, _ bool, _ time.Duration) (*executor.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, message)
	hang := f.ConfirmHang
	code := f.ConfirmExit
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &executor.Result{ExitCode: code}, nil
}

// Calls returns a copy of the recorded calls.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns each recorded call as a command line.
func (f *FakeExecutor) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

// Prompts returns the confirmation messages shown so far.
func (f *FakeExecutor) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
