package workflow

import (
	"fmt"

	"github.com/aisanity/aisanity/internal/template"
)

// Report is the full static check of one workflow: the graph plus the
// template syntax of every command and argument.
type Report struct {
	Workflow string       `json:"workflow"`
	Graph    *GraphResult `json:"graph"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Valid reports whether the workflow can be run.
func (r *Report) Valid() bool {
	return r.Graph != nil && r.Graph.Valid
}

// Inspect checks w without running anything. Dangerous shell sequences in
// templates are reported as warnings; a template that also carries
// placeholders is rejected at run time instead.
func Inspect(w *Workflow) *Report {
	r := &Report{Graph: ValidateGraph(w)}
	if w == nil {
		return r
	}
	r.Workflow = w.Name

	for _, name := range w.StateNames() {
		s := w.States[name]
		if s == nil {
			continue
		}
		check := func(field, tmpl string) {
			res := template.ValidateTemplateSyntax(tmpl)
			for _, msg := range res.Errors {
				r.Warnings = append(r.Warnings, fmt.Sprintf("state %q %s: %s", name, field, msg))
			}
			for _, msg := range res.Warnings {
				r.Warnings = append(r.Warnings, fmt.Sprintf("state %q %s: %s", name, field, msg))
			}
		}
		check("command", s.Command)
		for i, arg := range s.Args {
			check(fmt.Sprintf("args[%d]", i), arg)
		}
	}
	return r
}
