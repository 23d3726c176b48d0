// Package workflow loads, validates and runs YAML-defined state machines
// that sequence shell commands.
package workflow

import (
	"sort"
	"time"
)

// Definitions is the parsed workflow definition file.
type Definitions struct {
	Workflows map[string]*Workflow `yaml:"workflows" json:"workflows"`
	Metadata  *Metadata            `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Metadata is optional bookkeeping attached to a definition file.
type Metadata struct {
	Version  string `yaml:"version,omitempty" json:"version,omitempty"`
	Created  string `yaml:"created,omitempty" json:"created,omitempty"`
	Modified string `yaml:"modified,omitempty" json:"modified,omitempty"`
}

// Names returns the workflow names, sorted.
func (d *Definitions) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Workflows))
	for name := range d.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Workflow is a named graph of states with one initial state.
type Workflow struct {
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
	InitialState  string            `yaml:"initialState" json:"initialState"`
	States        map[string]*State `yaml:"states" json:"states"`
	GlobalTimeout int64             `yaml:"globalTimeout,omitempty" json:"globalTimeout,omitempty"` // Milliseconds, 0 = none
}

// State is one command plus its outgoing transitions.
type State struct {
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Command      string            `yaml:"command" json:"command"`
	Args         []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Timeout      int64             `yaml:"timeout,omitempty" json:"timeout,omitempty"` // Milliseconds, 0 = executor default
	Stdin        string            `yaml:"stdin,omitempty" json:"stdin,omitempty"`     // "", "inherit" or "pipe"
	Confirmation *Confirmation     `yaml:"confirmation,omitempty" json:"confirmation,omitempty"`
	Transitions  Transitions       `yaml:"transitions" json:"transitions"`
	Env          map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkingDir   string            `yaml:"workingDir,omitempty" json:"workingDir,omitempty"`
}

// Confirmation gates a state behind a timed yes/no prompt.
type Confirmation struct {
	Message       string `yaml:"message,omitempty" json:"message,omitempty"`
	Timeout       int64  `yaml:"timeout,omitempty" json:"timeout,omitempty"` // Milliseconds
	DefaultAccept bool   `yaml:"defaultAccept,omitempty" json:"defaultAccept,omitempty"`
}

// Transitions names the next state for each command outcome.
type Transitions struct {
	Success string `yaml:"success,omitempty" json:"success,omitempty"`
	Failure string `yaml:"failure,omitempty" json:"failure,omitempty"`
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Outcome classifies how a state's command finished.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Edge is one outgoing transition.
type Edge struct {
	Outcome Outcome
	Target  string
}

// Target returns the state named for outcome, or "".
func (t Transitions) Target(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return t.Success
	case OutcomeFailure:
		return t.Failure
	case OutcomeTimeout:
		return t.Timeout
	}
	return ""
}

// Edges returns the defined transitions in success, failure, timeout order.
func (t Transitions) Edges() []Edge {
	var edges []Edge
	for _, o := range []Outcome{OutcomeSuccess, OutcomeFailure, OutcomeTimeout} {
		if target := t.Target(o); target != "" {
			edges = append(edges, Edge{Outcome: o, Target: target})
		}
	}
	return edges
}

// IsTerminal reports whether the state has no outgoing transitions. A nil
// state is not terminal.
func (s *State) IsTerminal() bool {
	if s == nil {
		return false
	}
	return len(s.Transitions.Edges()) == 0
}

// TimeoutDuration returns the per-state timeout.
func (s *State) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Millisecond
}

// TimeoutDuration returns the prompt timeout.
func (c *Confirmation) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// GlobalTimeoutDuration returns the whole-run timeout.
func (w *Workflow) GlobalTimeoutDuration() time.Duration {
	return time.Duration(w.GlobalTimeout) * time.Millisecond
}

// StateNames returns the state names, sorted.
func (w *Workflow) StateNames() []string {
	names := make([]string, 0, len(w.States))
	for name := range w.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TerminalStates returns the states without outgoing transitions, sorted.
func (w *Workflow) TerminalStates() []string {
	var out []string
	for _, name := range w.StateNames() {
		if s := w.States[name]; s != nil && s.IsTerminal() {
			out = append(out, name)
		}
	}
	return out
}
