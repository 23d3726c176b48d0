package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aisanity/aisanity/internal/confirm"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/executor"
	"github.com/aisanity/aisanity/internal/logging"
	"github.com/aisanity/aisanity/internal/template"
)

// DefaultMaxIterations bounds the number of states one Execute call runs.
const DefaultMaxIterations = 1000

// outputSummaryLimit is the tail of command output kept per state.
const outputSummaryLimit = 4096

// CommandRunner runs a state's command. *executor.Executor implements it.
type CommandRunner interface {
	Execute(ctx context.Context, command string, args []string, opts executor.Options) (*executor.Result, error)
}

// Confirmer resolves a state's confirmation. *confirm.Confirmer implements it.
type Confirmer interface {
	Confirm(ctx context.Context, req confirm.Request) (*confirm.Result, error)
}

// ExecOptions are per-run flags.
type ExecOptions struct {
	Yes bool // Skip confirmations
}

// ExecutionContext is the per-run record of variables and metadata. The
// workflow name and start time never change; variables and metadata are
// replaced through StateMachine.UpdateContext.
type ExecutionContext struct {
	workflowName string
	startedAt    time.Time

	mu        sync.RWMutex
	variables map[string]string
	metadata  map[string]any
}

// WorkflowName returns the workflow being run.
func (c *ExecutionContext) WorkflowName() string { return c.workflowName }

// StartedAt returns when the context was created.
func (c *ExecutionContext) StartedAt() time.Time { return c.startedAt }

// Variables returns a copy of the merged template variables.
func (c *ExecutionContext) Variables() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return template.Merge(c.variables)
}

// Metadata returns a copy of the metadata bag.
func (c *ExecutionContext) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// RunID returns the run identifier stored in metadata.
func (c *ExecutionContext) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, _ := c.metadata["runId"].(string)
	return id
}

// MarshalJSON implements json.Marshaler.
func (c *ExecutionContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		WorkflowName string            `json:"workflowName"`
		StartedAt    time.Time         `json:"startedAt"`
		Variables    map[string]string `json:"variables"`
		Metadata     map[string]any    `json:"metadata"`
	}{c.workflowName, c.startedAt, c.Variables(), c.Metadata()})
}

// ContextUpdate is shallow-merged into the execution context: supplied keys
// overwrite, the rest persist.
type ContextUpdate struct {
	Variables map[string]string
	Metadata  map[string]any
}

// StateResult is the outcome of one ExecuteState call.
type StateResult struct {
	StateName    string                  `json:"stateName"`
	ExitCode     int                     `json:"exitCode"`
	ExecutedAt   time.Time               `json:"executedAt"`
	Duration     time.Duration           `json:"duration"`
	Output       string                  `json:"output,omitempty"`
	TimedOut     bool                    `json:"timedOut,omitempty"`
	Confirmation *confirm.Result         `json:"confirmation,omitempty"`
	Command      *template.CommandResult `json:"command,omitempty"`
}

// TransitionResult is the outcome of Transition.
type TransitionResult struct {
	CanTransition bool    `json:"canTransition"`
	NextState     string  `json:"nextState,omitempty"`
	Outcome       Outcome `json:"outcome"`
	Reason        string  `json:"reason,omitempty"`
}

// HistoryEntry records one executed state.
type HistoryEntry struct {
	StateName      string        `json:"stateName"`
	EnteredAt      time.Time     `json:"enteredAt"`
	ExitedAt       time.Time     `json:"exitedAt"`
	ExitCode       int           `json:"exitCode"`
	Duration       time.Duration `json:"-"`
	TransitionedTo string        `json:"transitionedTo"` // Empty when the run ended here
	Output         string        `json:"output,omitempty"`
}

// MarshalJSON reports the duration in milliseconds and a terminal entry's
// transitionedTo as null.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	type plain HistoryEntry
	var next *string
	if h.TransitionedTo != "" {
		next = &h.TransitionedTo
	}
	return json.Marshal(struct {
		plain
		DurationMs     int64   `json:"duration"`
		TransitionedTo *string `json:"transitionedTo"`
	}{plain(h), h.Duration.Milliseconds(), next})
}

// ExecutionResult summarizes one Execute call.
type ExecutionResult struct {
	WorkflowName  string         `json:"workflowName"`
	RunID         string         `json:"runId"`
	Success       bool           `json:"success"`
	FinalState    string         `json:"finalState"`
	StateHistory  []HistoryEntry `json:"stateHistory"`
	TotalDuration time.Duration  `json:"-"`
	Error         string         `json:"error,omitempty"`
}

// MarshalJSON reports the total duration in milliseconds.
func (r *ExecutionResult) MarshalJSON() ([]byte, error) {
	type plain ExecutionResult
	return json.Marshal(struct {
		*plain
		TotalDurationMs int64 `json:"totalDuration"`
	}{(*plain)(r), r.TotalDuration.Milliseconds()})
}

// StateMachine runs one workflow. A StateMachine is used for a single run;
// its history is cleared only by constructing a new one.
type StateMachine struct {
	workflow      *Workflow
	runner        CommandRunner
	confirmer     Confirmer
	processor     *template.Processor
	params        map[string]string
	maxIterations int
	logger        *slog.Logger
	context       *ExecutionContext

	mu           sync.Mutex
	currentState string
	history      []HistoryEntry
	contextVars  map[string]string
	lastTimedOut bool
}

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithRunner sets the command runner. Default: a new executor.Executor.
func WithRunner(r CommandRunner) Option {
	return func(m *StateMachine) { m.runner = r }
}

// WithConfirmer sets the confirmer. Default: a confirm.Confirmer over the
// runner when the runner can show prompts.
func WithConfirmer(c Confirmer) Option {
	return func(m *StateMachine) { m.confirmer = c }
}

// WithProcessor sets the template processor. Default: builtins of the
// current directory.
func WithProcessor(p *template.Processor) Option {
	return func(m *StateMachine) { m.processor = p }
}

// WithParams sets the CLI template parameters.
func WithParams(params map[string]string) Option {
	return func(m *StateMachine) { m.params = template.Merge(params) }
}

// WithMaxIterations sets the iteration ceiling.
func WithMaxIterations(n int) Option {
	return func(m *StateMachine) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *StateMachine) { m.logger = logger }
}

// New validates w's graph and creates a machine positioned at its initial
// state. Graph errors are returned as a validation error; graph warnings
// are logged.
func New(ctx context.Context, w *Workflow, opts ...Option) (*StateMachine, error) {
	if w == nil {
		return nil, aerrors.Validation("workflow", "is required")
	}

	m := &StateMachine{
		workflow:      w,
		maxIterations: DefaultMaxIterations,
		contextVars:   map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDiscard(m.logger)

	graph := ValidateGraph(w)
	if !graph.Valid {
		return nil, aerrors.Validation("workflows."+w.Name, strings.Join(graph.Errors, "; ")).
			WithDetail("errors", graph.Errors)
	}

	runID := uuid.NewString()
	m.logger = logging.WithRun(logging.WithWorkflow(m.logger, w.Name), runID)
	for _, warning := range graph.Warnings {
		m.logger.Warn("workflow graph warning", "warning", warning)
	}

	if m.runner == nil {
		m.runner = executor.New(executor.WithLogger(m.logger))
	}
	if m.confirmer == nil {
		if r, ok := m.runner.(confirm.Runner); ok {
			m.confirmer = confirm.New(r, confirm.WithLogger(m.logger))
		}
	}
	if m.processor == nil {
		m.processor = template.NewProcessor(template.NewBuiltinResolver("", template.WithLogger(m.logger)), m.logger)
	}

	m.currentState = w.InitialState
	m.context = &ExecutionContext{
		workflowName: w.Name,
		startedAt:    time.Now(),
		metadata:     map[string]any{"runId": runID},
	}
	m.refreshVariables(ctx)
	return m, nil
}

// refreshVariables rebuilds the context's merged variable view: builtins,
// then context variables, then valid CLI parameters.
func (m *StateMachine) refreshVariables(ctx context.Context) {
	valid := make(map[string]string, len(m.params))
	for name, value := range m.params {
		if template.ValidateTemplateVariable(name, value) == nil {
			valid[name] = value
		}
	}

	m.mu.Lock()
	ctxVars := template.Merge(m.contextVars)
	m.mu.Unlock()

	vars := template.Merge(m.processor.Builtins(ctx), ctxVars, valid)
	m.context.mu.Lock()
	m.context.variables = vars
	m.context.mu.Unlock()
}

// Workflow returns the workflow being run.
func (m *StateMachine) Workflow() *Workflow { return m.workflow }

// Context returns the execution context.
func (m *StateMachine) Context() *ExecutionContext { return m.context }

// UpdateContext shallow-merges u into the execution context.
func (m *StateMachine) UpdateContext(ctx context.Context, u ContextUpdate) {
	m.mu.Lock()
	for k, v := range u.Variables {
		m.contextVars[k] = v
	}
	m.mu.Unlock()

	m.context.mu.Lock()
	for k, v := range u.Metadata {
		m.context.metadata[k] = v
	}
	m.context.mu.Unlock()

	m.refreshVariables(ctx)
}

// CurrentState returns the state the next step will run.
func (m *StateMachine) CurrentState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentState
}

// SetCurrentState moves the machine to name, e.g. to start a run mid-graph.
func (m *StateMachine) SetCurrentState(name string) error {
	if m.workflow.States[name] == nil {
		return aerrors.StateNotFound(m.workflow.Name, name)
	}
	m.mu.Lock()
	m.currentState = name
	m.lastTimedOut = false
	m.mu.Unlock()
	return nil
}

// History returns a copy of the executed states, oldest first.
func (m *StateMachine) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history...)
}

// ExecuteState runs the named state once: confirmation first when
// configured, then template processing, then the command.
//
// A declined confirmation yields exit code 1 without running anything. A
// command timeout yields exit code 124 with TimedOut set, and a spawn
// failure yields 127 or 126; neither is returned as an error. Invalid
// template parameters return a validation error and nothing is spawned.
func (m *StateMachine) ExecuteState(ctx context.Context, name string, opts ExecOptions) (*StateResult, error) {
	state := m.workflow.States[name]
	if state == nil {
		return nil, aerrors.StateNotFound(m.workflow.Name, name)
	}

	log := logging.WithState(m.logger, name)
	start := time.Now()
	res := &StateResult{StateName: name, ExecutedAt: start}
	finish := func(timedOut bool) {
		res.Duration = time.Since(start)
		res.TimedOut = timedOut
		m.mu.Lock()
		m.lastTimedOut = timedOut
		m.mu.Unlock()
	}

	if c := state.Confirmation; c != nil {
		if m.confirmer == nil {
			return nil, aerrors.Execution(fmt.Sprintf("state %q requires confirmation but no prompt is available", name), nil)
		}
		message := template.Substitute(c.Message, m.context.Variables())
		cres, err := m.confirmer.Confirm(ctx, confirm.Request{
			Message:       message,
			Timeout:       c.TimeoutDuration(),
			DefaultAccept: c.DefaultAccept,
			Skip:          opts.Yes,
		})
		if err != nil {
			return nil, err
		}
		res.Confirmation = cres
		log.Info("confirmation resolved", "confirmed", cres.Confirmed, "method", cres.Method)

		if !cres.Confirmed {
			res.ExitCode = 1
			res.Output = "confirmation declined"
			if cres.TimedOut {
				res.Output = "confirmation timed out; default is to decline"
			}
			finish(false)
			return res, nil
		}
	}

	m.mu.Lock()
	ctxVars := template.Merge(m.contextVars)
	m.mu.Unlock()

	cr := m.processor.Process(ctx, template.Request{
		Command: state.Command,
		Args:    state.Args,
		Context: ctxVars,
		Params:  m.params,
	})
	res.Command = cr
	if !cr.ExecutionReady {
		finish(false)
		return nil, aerrors.Validation("states."+name, strings.Join(cr.ValidationErrors, "; ")).
			WithDetail("state", name).
			WithDetail("errors", cr.ValidationErrors)
	}
	if len(cr.Unresolved) > 0 {
		log.Warn("unresolved template variables", "variables", cr.Unresolved)
	}

	execOpts := executor.Options{
		Timeout: state.TimeoutDuration(),
		Dir:     state.WorkingDir,
		Env:     state.Env,
		Stdin:   executor.StdinMode(state.Stdin),
	}

	log.Info("executing state", "command", cr.Command, "args", cr.Args)
	r, err := m.runner.Execute(ctx, cr.Command, cr.Args, execOpts)
	res.Output = summarizeOutput(r)

	switch {
	case err == nil:
		res.ExitCode = r.ExitCode
		finish(false)
	case aerrors.HasCode(err, aerrors.CodeCommandTimeout):
		log.Warn("state timed out", "timeout", execOpts.Timeout)
		res.ExitCode = aerrors.ExitTimeout
		finish(true)
	case aerrors.HasCode(err, aerrors.CodeSpawnFailed) && r != nil:
		log.Warn("command could not be started", "command", cr.Command, "exit_code", r.ExitCode, "error", err)
		res.ExitCode = r.ExitCode
		res.Output = err.Error()
		finish(false)
	default:
		finish(false)
		return nil, aerrors.Execution(fmt.Sprintf("state %q failed", name), err)
	}

	log.Info("state finished", "exit_code", res.ExitCode, "duration", res.Duration)
	return res, nil
}

// Transition selects the next state for exitCode: 0 is success, 124 after
// a timed-out command is timeout (falling back to the failure transition),
// anything else is failure. When the current state has no matching
// transition the machine stays where it is.
func (m *StateMachine) Transition(exitCode int) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.workflow.States[m.currentState]
	if state == nil {
		return &TransitionResult{Reason: fmt.Sprintf("current state %q not found", m.currentState)}
	}

	outcome := OutcomeFailure
	switch {
	case exitCode == 0:
		outcome = OutcomeSuccess
	case exitCode == aerrors.ExitTimeout && m.lastTimedOut:
		outcome = OutcomeTimeout
	}

	target := state.Transitions.Target(outcome)
	if target == "" && outcome == OutcomeTimeout {
		target = state.Transitions.Failure
	}
	if target == "" {
		return &TransitionResult{
			Outcome: outcome,
			Reason:  fmt.Sprintf("state %q has no %s transition", m.currentState, outcome),
		}
	}

	m.currentState = target
	m.lastTimedOut = false
	return &TransitionResult{CanTransition: true, NextState: target, Outcome: outcome}
}

// Execute runs states from the current one until no transition applies or
// the iteration ceiling is hit. The result is always non-nil; the error is
// the same one recorded in the result.
//
// Ending after a success with no success transition is a normal
// completion. Ending after a failure or timeout with no transition for it
// fails the run with a state transition error, and FinalState names the
// state that could not move on.
func (m *StateMachine) Execute(ctx context.Context, opts ExecOptions) (*ExecutionResult, error) {
	start := time.Now()
	runCtx := ctx
	if d := m.workflow.GlobalTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	m.logger.Info("workflow started", "initial_state", m.CurrentState())

	var runErr error
	for i := 0; ; i++ {
		if i >= m.maxIterations {
			runErr = aerrors.IterationLimit(m.maxIterations)
			break
		}
		if runCtx.Err() != nil {
			runErr = m.interrupted(ctx, runCtx)
			break
		}

		name := m.CurrentState()
		entered := time.Now()
		sr, err := m.ExecuteState(runCtx, name, opts)
		if err != nil {
			if runCtx.Err() != nil {
				err = m.interrupted(ctx, runCtx)
			}
			runErr = err
			break
		}

		tr := m.Transition(sr.ExitCode)
		m.mu.Lock()
		m.history = append(m.history, HistoryEntry{
			StateName:      name,
			EnteredAt:      entered,
			ExitedAt:       time.Now(),
			ExitCode:       sr.ExitCode,
			Duration:       sr.Duration,
			TransitionedTo: tr.NextState,
			Output:         sr.Output,
		})
		m.mu.Unlock()

		if !tr.CanTransition {
			if tr.Outcome != OutcomeSuccess {
				runErr = aerrors.StateTransition(name, string(tr.Outcome), sr.ExitCode)
			}
			break
		}
		m.logger.Debug("transition", "from", name, "to", tr.NextState, "outcome", tr.Outcome)
	}

	result := &ExecutionResult{
		WorkflowName:  m.workflow.Name,
		RunID:         m.context.RunID(),
		Success:       runErr == nil,
		FinalState:    m.CurrentState(),
		StateHistory:  m.History(),
		TotalDuration: time.Since(start),
	}
	if runErr != nil {
		result.Error = runErr.Error()
		m.logger.Error("workflow failed", "final_state", result.FinalState, "error", runErr)
	} else {
		m.logger.Info("workflow completed", "final_state", result.FinalState, "duration", result.TotalDuration)
	}
	return result, runErr
}

// interrupted builds the error for a run whose context ended: the
// workflow's global timeout, or cancellation by the caller.
func (m *StateMachine) interrupted(parent, run context.Context) error {
	if parent.Err() == nil && errors.Is(run.Err(), context.DeadlineExceeded) {
		return aerrors.Execution("workflow exceeded its global timeout",
			aerrors.CommandTimeout(m.workflow.Name, m.workflow.GlobalTimeout))
	}
	return aerrors.Execution("workflow interrupted", parent.Err())
}

// summarizeOutput keeps the tail of the command's output.
func summarizeOutput(r *executor.Result) string {
	if r == nil {
		return ""
	}
	out := strings.TrimRight(r.Stdout, "\n")
	if stderr := strings.TrimRight(r.Stderr, "\n"); stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += stderr
	}
	if len(out) > outputSummaryLimit {
		out = "...(truncated)\n" + out[len(out)-outputSummaryLimit:]
	}
	return out
}
