package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aisanity/aisanity/internal/cli"
	"github.com/aisanity/aisanity/internal/executor"
	"github.com/aisanity/aisanity/internal/template"
)

// Validate checks the definitions for structural and semantic problems and
// returns all of them, ordered by workflow and state name.
func (d *Definitions) Validate() []Problem {
	var problems []Problem
	add := func(path []string, format string, args ...any) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(d.Workflows) == 0 {
		add([]string{"workflows"}, "at least one workflow is required")
		return problems
	}

	for _, name := range d.Names() {
		base := []string{"workflows", name}
		w := d.Workflows[name]
		if w == nil {
			add(base, "workflow definition is empty")
			continue
		}
		problems = append(problems, w.validate(base)...)
	}
	return problems
}

func (w *Workflow) validate(base []string) []Problem {
	var problems []Problem
	add := func(path []string, format string, args ...any) {
		problems = append(problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	at := func(segs ...string) []string {
		return append(append([]string(nil), base...), segs...)
	}

	if strings.TrimSpace(w.Name) == "" {
		add(at("name"), "is required")
	}
	if w.GlobalTimeout < 0 {
		add(at("globalTimeout"), "must be non-negative")
	}
	if len(w.States) == 0 {
		add(at("states"), "at least one state is required")
	}
	switch {
	case w.InitialState == "":
		add(at("initialState"), "is required")
	case len(w.States) > 0 && !w.hasState(w.InitialState):
		add(at("initialState"), "references non-existent state %q", w.InitialState)
	}

	for _, name := range w.StateNames() {
		s := w.States[name]
		if s == nil {
			add(at("states", name), "state definition is empty")
			continue
		}
		field := func(segs ...string) []string {
			return at(append([]string{"states", name}, segs...)...)
		}

		if strings.TrimSpace(s.Command) == "" {
			add(field("command"), "is required")
		} else {
			for _, msg := range template.ValidatePlaceholders(s.Command).Errors {
				add(field("command"), "%s", msg)
			}
		}
		for i, arg := range s.Args {
			for _, msg := range template.ValidatePlaceholders(arg).Errors {
				add(field("args", fmt.Sprint(i)), "%s", msg)
			}
		}
		if s.Timeout < 0 {
			add(field("timeout"), "must be non-negative")
		}
		if !executor.StdinMode(s.Stdin).Valid() {
			add(field("stdin"), "must be %q or %q, got %q", executor.StdinInherit, executor.StdinPipe, s.Stdin)
		}
		if c := s.Confirmation; c != nil {
			if err := cli.ValidateMessage(c.Message); err != nil {
				add(field("confirmation", "message"), "%v", err)
			}
			if c.Timeout < 0 {
				add(field("confirmation", "timeout"), "must be non-negative")
			}
		}
		for _, e := range s.Transitions.Edges() {
			if !w.hasState(e.Target) {
				add(field("transitions", string(e.Outcome)), "references non-existent state %q", e.Target)
			}
		}
		for _, key := range sortedEnvKeys(s.Env) {
			if !template.IsIdentifier(key) {
				add(field("env", key), "invalid environment variable name")
			}
		}
	}
	return problems
}

// hasState reports whether name is a key of States, even with an empty
// definition.
func (w *Workflow) hasState(name string) bool {
	_, ok := w.States[name]
	return ok
}

func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
