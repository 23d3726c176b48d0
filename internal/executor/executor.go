// Package executor spawns workflow commands with bounded output capture,
// per-command timeouts, a ceiling on active processes and two-stage
// termination (SIGTERM, then SIGKILL after a grace period).
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aisanity/aisanity/internal/config"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/logging"
	"github.com/aisanity/aisanity/internal/template"
)

// Defaults used when no configuration is supplied.
const (
	DefaultMaxConcurrent  = 10
	DefaultMaxOutputBytes = 10 * 1024 * 1024
	DefaultKillGrace      = 3 * time.Second
)

// StdinMode selects where a command's stdin comes from.
type StdinMode string

const (
	StdinNone    StdinMode = ""        // /dev/null
	StdinInherit StdinMode = "inherit" // Parent's stdin
	StdinPipe    StdinMode = "pipe"    // Options.Input
)

// Valid reports whether m is a known mode.
func (m StdinMode) Valid() bool {
	switch m {
	case StdinNone, StdinInherit, StdinPipe:
		return true
	}
	return false
}

// Options configures a single command invocation.
type Options struct {
	Timeout time.Duration     // Zero uses the executor default; still zero means none
	Dir     string            // Working directory
	Env     map[string]string // Overlaid on the parent environment
	Stdin   StdinMode
	Input   string // Written to stdin when Stdin is StdinPipe

	// ValidateInjection rejects arguments containing dangerous shell
	// sequences before spawning.
	ValidateInjection bool

	// CaptureStdout captures stdout on the TUI path instead of passing it
	// through to the terminal.
	CaptureStdout bool

	// NoTimeout disables both Timeout and the executor default. The command
	// then runs until it exits or ctx is done.
	NoTimeout bool
}

// Result is the outcome of one command invocation.
type Result struct {
	ExitCode  int           `json:"exitCode"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Duration  time.Duration `json:"duration"`
	Signal    string        `json:"signal,omitempty"`
	TimedOut  bool          `json:"timedOut,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Success reports whether the command exited 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Executor runs commands and tracks the ones still active so they can be
// terminated together.
type Executor struct {
	maxConcurrent  int
	maxOutputBytes int
	killGrace      time.Duration
	defaultTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	active   map[uint64]*process
	reserved int // Slots held between the limit check and Start
	nextID   uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrent sets the active process ceiling. Zero or less disables it.
func WithMaxConcurrent(n int) Option {
	return func(e *Executor) { e.maxConcurrent = n }
}

// WithMaxOutputBytes caps captured stdout and stderr, each.
func WithMaxOutputBytes(n int) Option {
	return func(e *Executor) { e.maxOutputBytes = n }
}

// WithKillGrace sets the wait between SIGTERM and SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(e *Executor) { e.killGrace = d }
}

// WithDefaultTimeout applies to commands that set no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultTimeout = d }
}

// WithConfig applies the [executor] configuration table.
func WithConfig(cfg config.ExecutorConfig) Option {
	return func(e *Executor) {
		e.maxConcurrent = cfg.MaxConcurrent
		e.maxOutputBytes = cfg.MaxOutputBytes
		e.killGrace = cfg.KillGrace
		e.defaultTimeout = cfg.DefaultTimeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		maxConcurrent:  DefaultMaxConcurrent,
		maxOutputBytes: DefaultMaxOutputBytes,
		killGrace:      DefaultKillGrace,
		active:         make(map[uint64]*process),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

// Execute runs command with args (no shell) and captures its output.
//
// A non-zero exit is reported in Result.ExitCode with a nil error. Errors
// are returned for a timeout (CMD_001, exit code 124), the process ceiling
// (CMD_002), a spawn failure (CMD_003, exit code 127 or 126), injection
// (CMD_004) and cancellation (CMD_005). The Result is non-nil whenever a
// process was attempted.
func (e *Executor) Execute(ctx context.Context, command string, args []string, opts Options) (*Result, error) {
	return e.run(ctx, command, args, opts, false)
}

// ExecuteTUI runs an interactive command with the terminal's stdin and
// stderr. Stdout is inherited too unless opts.CaptureStdout is set. The
// process stays in the foreground process group so it can read the tty.
func (e *Executor) ExecuteTUI(ctx context.Context, command string, args []string, opts Options) (*Result, error) {
	return e.run(ctx, command, args, opts, true)
}

func (e *Executor) run(ctx context.Context, command string, args []string, opts Options, tui bool) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return nil, aerrors.Validation("command", "must not be empty")
	}
	if !opts.Stdin.Valid() {
		return nil, aerrors.Validation("stdin", fmt.Sprintf("unknown mode %q", opts.Stdin))
	}
	if opts.ValidateInjection {
		for _, arg := range args {
			if template.ContainsDangerousSequence(arg) {
				return nil, aerrors.InjectionDetected(command, arg)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, aerrors.Wrapf(aerrors.CodeCommandUnknown, err, "command %q not started", command)
	}

	timeout := e.effectiveTimeout(opts)

	if err := e.reserve(); err != nil {
		return nil, err
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), opts.Env)
	}
	cmd.WaitDelay = e.killGrace

	stdout := newBoundedBuffer(e.maxOutputBytes)
	stderr := newBoundedBuffer(e.maxOutputBytes)

	if tui {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if opts.CaptureStdout {
			cmd.Stdout = stdout
		}
	} else {
		switch opts.Stdin {
		case StdinInherit:
			cmd.Stdin = os.Stdin
		case StdinPipe:
			cmd.Stdin = strings.NewReader(opts.Input)
		}
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	// A process reading the terminal must stay in the foreground group.
	group := !tui && opts.Stdin != StdinInherit

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()

	start := time.Now()
	p, err := startProcess(id, command, cmd, group)
	if err != nil {
		e.release(nil)
		code := spawnExitCode(err)
		e.logger.Debug("spawn failed", "command", command, "exit_code", code, "error", err)
		return &Result{
			ExitCode: code,
			Stderr:   err.Error(),
			Duration: time.Since(start),
		}, aerrors.SpawnFailed(command, code, err)
	}
	e.track(p)
	defer e.release(p)

	e.logger.Debug("command started", "command", command, "args", args, "pid", cmd.Process.Pid, "timeout", timeout)

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var timedOut, cancelled bool
	select {
	case <-p.Done():
	case <-timer:
		timedOut = p.IsRunning()
		p.terminate(e.killGrace)
	case <-ctx.Done():
		cancelled = p.IsRunning()
		p.terminate(e.killGrace)
	}

	exitCode, signal := p.Outcome()
	result := &Result{
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  p.Duration(),
		Signal:    signal,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	e.logger.Debug("command finished",
		"command", command,
		"exit_code", exitCode,
		"signal", signal,
		"duration", result.Duration,
		"timed_out", timedOut,
	)

	switch {
	case timedOut:
		result.TimedOut = true
		result.ExitCode = aerrors.ExitTimeout
		return result, aerrors.CommandTimeout(command, timeout.Milliseconds())
	case cancelled:
		result.ExitCode = -1
		return result, aerrors.Wrapf(aerrors.CodeCommandUnknown, ctx.Err(), "command %q cancelled", command)
	}
	return result, nil
}

func (e *Executor) effectiveTimeout(opts Options) time.Duration {
	switch {
	case opts.NoTimeout:
		return 0
	case opts.Timeout > 0:
		return opts.Timeout
	}
	return e.defaultTimeout
}

// ActiveCount returns the number of tracked running processes.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Cleanup terminates every tracked process and waits for them to exit, or
// for ctx to end. It is safe to call repeatedly and with nothing running.
func (e *Executor) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	procs := make([]*process, 0, len(e.active))
	for _, p := range e.active {
		procs = append(procs, p)
	}
	e.mu.Unlock()

	if len(procs) == 0 {
		return nil
	}
	e.logger.Info("terminating active processes", "count", len(procs))

	var g errgroup.Group
	for _, p := range procs {
		p := p
		g.Go(func() error {
			p.terminate(e.killGrace)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reserve claims a process slot or fails with CMD_002 without spawning.
func (e *Executor) reserve() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.maxConcurrent > 0 && len(e.active)+e.reserved >= e.maxConcurrent {
		return aerrors.ResourceLimit(e.maxConcurrent)
	}
	e.reserved++
	return nil
}

// track converts a reserved slot into an active process.
func (e *Executor) track(p *process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reserved--
	e.active[p.id] = p
}

// release frees the slot held by p, or an unused reservation when p is nil.
func (e *Executor) release(p *process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		e.reserved--
		return
	}
	delete(e.active, p.id)
}

// spawnExitCode maps a Start error to the shell's conventional exit code.
func spawnExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return aerrors.ExitCommandNotFound
	}
	// Permission denied, not an executable, bad working directory type.
	return aerrors.ExitCannotExecute
}

// mergeEnv overlays vars on base, replacing existing keys.
func mergeEnv(base []string, vars map[string]string) []string {
	env := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := vars[key]; override {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
