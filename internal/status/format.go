package status

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/aisanity/aisanity/internal/workflow"
)

// FormatOptions controls output formatting.
type FormatOptions struct {
	NoColor bool
	Quiet   bool // Headline only
	Verbose bool // Include command output
}

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bold   = lipgloss.NewStyle().Bold(true)
)

// FormatRunSummary formats a finished run.
func FormatRunSummary(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(formatRunHeader(summary, opts))

	if opts.Quiet {
		return b.String()
	}

	if len(summary.Steps) > 0 {
		b.WriteString("\n\n")
		b.WriteString(formatStats(summary.Stats, opts))
		b.WriteString("\n\n")
		b.WriteString(formatHistory(summary, opts))
	}

	if len(summary.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(formatErrors(summary.Errors, opts))
	}

	return b.String()
}

func formatRunHeader(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	status, style := "succeeded", green
	icon := "✓"
	if !summary.Success {
		status, style, icon = "failed", red, "✗"
	}

	b.WriteString(fmt.Sprintf("Workflow: %s\n", summary.Workflow))
	if summary.RunID != "" {
		b.WriteString(fmt.Sprintf("Run:      %s\n", summary.RunID))
	}
	b.WriteString(fmt.Sprintf("Status:   %s\n", paint(style, icon+" "+status, opts)))
	b.WriteString(fmt.Sprintf("Final:    %s\n", summary.FinalState))
	b.WriteString(fmt.Sprintf("Duration: %s", formatDuration(summary.Duration)))

	return b.String()
}

func formatStats(stats StateStats, opts FormatOptions) string {
	parts := []string{}
	if stats.Succeeded > 0 {
		parts = append(parts, paint(green, fmt.Sprintf("✓ %d succeeded", stats.Succeeded), opts))
	}
	if stats.Failed > 0 {
		parts = append(parts, paint(red, fmt.Sprintf("✗ %d failed", stats.Failed), opts))
	}
	if stats.TimedOut > 0 {
		parts = append(parts, paint(yellow, fmt.Sprintf("⏱ %d timed out", stats.TimedOut), opts))
	}
	return fmt.Sprintf("States:   %s (%d executed)", strings.Join(parts, ", "), stats.Total)
}

func formatHistory(summary *RunSummary, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString("History:\n")

	var table strings.Builder
	tw := tabwriter.NewWriter(&table, 0, 0, 2, ' ', 0)
	for i, step := range summary.Steps {
		next := "(end)"
		if step.Next != "" {
			next = "→ " + step.Next
		}
		fmt.Fprintf(tw, "  %d.\t%s\t%s\texit %d\t%s\t%s\n",
			i+1, step.State, outcomeIcon(step.Outcome), step.ExitCode, formatDuration(step.Duration), next)
	}
	tw.Flush()

	lines := strings.Split(strings.TrimRight(table.String(), "\n"), "\n")
	for i, line := range lines {
		b.WriteString(colorOutcome(line, summary.Steps[i].Outcome, opts))
		b.WriteString("\n")
		if opts.Verbose && summary.Steps[i].Output != "" {
			b.WriteString(indent(summary.Steps[i].Output, "       "))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatErrors(errs []string, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(paint(red, "Errors:", opts))
	b.WriteString("\n")
	for _, err := range errs {
		b.WriteString(fmt.Sprintf("  %s %s\n", paint(red, "✗", opts), err))
	}

	return b.String()
}

// FormatSimulation formats a dry run report.
func FormatSimulation(r *workflow.SimulationResult, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s %s (from %s)\n", paint(bold, "Dry run:", opts), r.WorkflowName, r.StartState))
	b.WriteString(fmt.Sprintf("Estimated:  ~%s\n", formatDuration(r.TotalEstimated)))
	b.WriteString(fmt.Sprintf("Complexity: %s\n", r.Complexity))
	b.WriteString(fmt.Sprintf("Confidence: %s", r.Confidence))

	if opts.Quiet {
		return b.String()
	}

	b.WriteString("\n\nSteps:\n")
	for i, step := range r.Steps {
		line := strings.TrimSpace(step.Command + " " + strings.Join(step.Args, " "))
		b.WriteString(fmt.Sprintf("  %d. %s: %s %s\n", i+1, step.StateName, line,
			paint(gray, fmt.Sprintf("~%s (%s)", formatDuration(step.Estimated), step.Confidence), opts)))
		if step.RequiresConfirmation {
			b.WriteString(fmt.Sprintf("     %s %q\n", paint(yellow, "? confirm", opts), step.ConfirmationMessage))
		}
	}
	if r.ReachedIterationLimit {
		b.WriteString(paint(yellow, "  ... stopped at the iteration limit\n", opts))
	} else {
		b.WriteString(fmt.Sprintf("Final state: %s\n", r.FinalState))
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n")
		b.WriteString(formatWarnings(r.Warnings, "", opts))
	}

	return b.String()
}

// FormatReport formats the static check of one workflow.
func FormatReport(r *workflow.Report, opts FormatOptions) string {
	var b strings.Builder

	if r.Valid() {
		b.WriteString(fmt.Sprintf("%s %s: valid\n", paint(green, "✓", opts), r.Workflow))
	} else {
		b.WriteString(fmt.Sprintf("%s %s: invalid\n", paint(red, "✗", opts), r.Workflow))
	}

	if opts.Quiet {
		return b.String()
	}

	g := r.Graph
	if g != nil && len(g.Terminal) > 0 {
		b.WriteString(fmt.Sprintf("  Terminal states: %s\n", strings.Join(g.Terminal, ", ")))
	}
	if g != nil && len(g.Errors) > 0 {
		b.WriteString(paint(red, "  Errors:", opts))
		b.WriteString("\n")
		for _, e := range g.Errors {
			b.WriteString(fmt.Sprintf("    %s %s\n", paint(red, "✗", opts), e))
		}
	}

	var warnings []string
	if g != nil {
		warnings = append(warnings, g.Warnings...)
	}
	warnings = append(warnings, r.Warnings...)
	if len(warnings) > 0 {
		b.WriteString(formatWarnings(warnings, "  ", opts))
	}

	return b.String()
}

func formatWarnings(warnings []string, prefix string, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(prefix)
	b.WriteString(paint(yellow, "Warnings:", opts))
	b.WriteString("\n")
	for _, w := range warnings {
		b.WriteString(fmt.Sprintf("%s  %s %s\n", prefix, paint(yellow, "⚠", opts), w))
	}

	return b.String()
}

// FormatWorkflow formats a workflow's states and transitions.
func FormatWorkflow(w *workflow.Workflow, opts FormatOptions) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Workflow: %s\n", paint(bold, w.Name, opts)))
	if w.Description != "" {
		b.WriteString(fmt.Sprintf("Description: %s\n", w.Description))
	}
	b.WriteString(fmt.Sprintf("Initial state: %s\n", w.InitialState))
	if w.GlobalTimeout > 0 {
		b.WriteString(fmt.Sprintf("Global timeout: %s\n", formatDuration(w.GlobalTimeoutDuration())))
	}

	b.WriteString("\nStates:\n")
	for _, name := range w.StateNames() {
		s := w.States[name]
		if s == nil {
			continue
		}

		var tags []string
		if name == w.InitialState {
			tags = append(tags, "initial")
		}
		if s.IsTerminal() {
			tags = append(tags, "terminal")
		}
		header := "  " + paint(bold, name, opts)
		if len(tags) > 0 {
			header += " " + paint(gray, "("+strings.Join(tags, ", ")+")", opts)
		}
		b.WriteString(header + "\n")

		if s.Description != "" && !opts.Quiet {
			b.WriteString(fmt.Sprintf("    %s\n", paint(gray, s.Description, opts)))
		}
		b.WriteString(fmt.Sprintf("    command: %s\n", strings.TrimSpace(s.Command+" "+strings.Join(s.Args, " "))))
		if s.Timeout > 0 {
			b.WriteString(fmt.Sprintf("    timeout: %s\n", formatDuration(s.TimeoutDuration())))
		}
		if c := s.Confirmation; c != nil {
			def := "no"
			if c.DefaultAccept {
				def = "yes"
			}
			b.WriteString(fmt.Sprintf("    confirm: %q (default %s", c.Message, def))
			if c.Timeout > 0 {
				b.WriteString(fmt.Sprintf(", timeout %s", formatDuration(c.TimeoutDuration())))
			}
			b.WriteString(")\n")
		}
		for _, e := range s.Transitions.Edges() {
			b.WriteString(fmt.Sprintf("    %s → %s\n", e.Outcome, e.Target))
		}
	}

	return b.String()
}

// FormatWorkflowList formats workflow names with their descriptions.
func FormatWorkflowList(workflows []*workflow.Workflow, opts FormatOptions) string {
	if len(workflows) == 0 {
		return "No workflows defined\n"
	}

	var b strings.Builder
	if !opts.Quiet {
		b.WriteString(fmt.Sprintf("Found %d workflow(s):\n\n", len(workflows)))
	}

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, w := range workflows {
		if opts.Quiet {
			fmt.Fprintln(tw, w.Name)
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\n", w.Name, w.Description)
	}
	tw.Flush()

	return b.String()
}

// Formatting helpers

func paint(style lipgloss.Style, s string, opts FormatOptions) string {
	if opts.NoColor {
		return s
	}
	return style.Render(s)
}

func outcomeIcon(o Outcome) string {
	switch o {
	case OutcomeSucceeded:
		return "✓"
	case OutcomeFailed:
		return "✗"
	case OutcomeTimedOut:
		return "⏱"
	default:
		return "?"
	}
}

func colorOutcome(line string, o Outcome, opts FormatOptions) string {
	switch o {
	case OutcomeFailed:
		return paint(red, line, opts)
	case OutcomeTimedOut:
		return paint(yellow, line, opts)
	}
	return line
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
