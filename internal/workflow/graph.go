package workflow

import (
	"fmt"
	"strings"
)

// GraphResult is the outcome of static graph checks. Valid is false only
// when Errors is non-empty; warnings never invalidate a workflow.
type GraphResult struct {
	Valid       bool       `json:"valid"`
	Errors      []string   `json:"errors,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	Unreachable []string   `json:"unreachable,omitempty"`
	Cycles      [][]string `json:"cycles,omitempty"`
	Terminal    []string   `json:"terminal,omitempty"`
}

// CircularityResult reports the cycles found in a transition graph.
type CircularityResult struct {
	HasCircularity bool       `json:"hasCircularity"`
	Cycles         [][]string `json:"cycles,omitempty"`
}

// ValidateGraph checks the initial state, transition targets, reachability,
// cycles and terminal states of w.
func ValidateGraph(w *Workflow) *GraphResult {
	r := &GraphResult{}
	if w == nil {
		r.Errors = append(r.Errors, "workflow is nil")
		return r
	}

	initialOK := false
	switch {
	case w.InitialState == "":
		r.Errors = append(r.Errors, "initial state is not set")
	case w.States[w.InitialState] == nil:
		r.Errors = append(r.Errors, fmt.Sprintf("initial state %q does not exist", w.InitialState))
	default:
		initialOK = true
	}

	for _, name := range w.StateNames() {
		s := w.States[name]
		if s == nil {
			r.Errors = append(r.Errors, fmt.Sprintf("state %q has no definition", name))
			continue
		}
		for _, e := range s.Transitions.Edges() {
			if w.States[e.Target] == nil {
				r.Errors = append(r.Errors, fmt.Sprintf("state %q %s transition references non-existent state %q", name, e.Outcome, e.Target))
			}
		}
	}

	if initialOK {
		reached := reachable(w, w.InitialState)
		for _, name := range w.StateNames() {
			if !reached[name] {
				r.Unreachable = append(r.Unreachable, name)
				r.Warnings = append(r.Warnings, fmt.Sprintf("state %q is unreachable from initial state %q", name, w.InitialState))
			}
		}
	}

	r.Cycles = DetectCircularTransitions(w).Cycles
	for _, c := range r.Cycles {
		r.Warnings = append(r.Warnings, "circular transition detected: "+strings.Join(c, " → "))
	}

	r.Terminal = w.TerminalStates()
	if len(r.Terminal) == 0 && len(w.States) > 0 {
		r.Warnings = append(r.Warnings, "workflow has no terminal states and may run indefinitely")
	}

	r.Valid = len(r.Errors) == 0
	return r
}

// successors returns the existing targets of name's transitions.
func successors(w *Workflow, name string) []string {
	s := w.States[name]
	if s == nil {
		return nil
	}
	var out []string
	for _, e := range s.Transitions.Edges() {
		if w.States[e.Target] != nil {
			out = append(out, e.Target)
		}
	}
	return out
}

func reachable(w *Workflow, from string) map[string]bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		name := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range successors(w, name) {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// DetectCircularTransitions finds cycles with a depth-first search that
// starts at the initial state, then covers any remaining states in name
// order. Each cycle is reported as a path that begins and ends at the same
// state, e.g. [build test build].
func DetectCircularTransitions(w *Workflow) *CircularityResult {
	r := &CircularityResult{}
	if w == nil {
		return r
	}

	const (
		unvisited = iota
		onStack
		done
	)
	color := make(map[string]int, len(w.States))
	seen := make(map[string]bool)
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		color[name] = onStack
		stack = append(stack, name)

		for _, next := range successors(w, name) {
			switch color[next] {
			case onStack:
				idx := len(stack) - 1
				for idx > 0 && stack[idx] != next {
					idx--
				}
				cycle := append(append([]string(nil), stack[idx:]...), next)
				if key := strings.Join(cycle, "\x00"); !seen[key] {
					seen[key] = true
					r.Cycles = append(r.Cycles, cycle)
				}
			case unvisited:
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = done
	}

	roots := w.StateNames()
	if w.States[w.InitialState] != nil {
		roots = append([]string{w.InitialState}, roots...)
	}
	for _, name := range roots {
		if w.States[name] != nil && color[name] == unvisited {
			visit(name)
		}
	}

	r.HasCircularity = len(r.Cycles) > 0
	return r
}
