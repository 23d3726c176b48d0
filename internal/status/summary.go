// Package status renders workflow runs, dry runs and validation reports
// for the terminal.
package status

import (
	"time"

	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/workflow"
)

// Outcome classifies one executed state for display.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed out"
)

// RunSummary contains computed information about a run for display.
type RunSummary struct {
	Workflow   string        `json:"workflow"`
	RunID      string        `json:"run_id"`
	Success    bool          `json:"success"`
	FinalState string        `json:"final_state"`
	Duration   time.Duration `json:"duration"`
	Stats      StateStats    `json:"stats"`
	Steps      []StepSummary `json:"steps"`
	Errors     []string      `json:"errors,omitempty"`
}

// StateStats contains the executed state count breakdown.
type StateStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
}

// StepSummary is one history entry for display.
type StepSummary struct {
	State    string        `json:"state"`
	ExitCode int           `json:"exit_code"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Next     string        `json:"next,omitempty"`
	Output   string        `json:"output,omitempty"`
}

// NewRunSummary creates a summary from an execution result.
func NewRunSummary(r *workflow.ExecutionResult) *RunSummary {
	summary := &RunSummary{
		Workflow:   r.WorkflowName,
		RunID:      r.RunID,
		Success:    r.Success,
		FinalState: r.FinalState,
		Duration:   r.TotalDuration,
	}

	for _, h := range r.StateHistory {
		step := StepSummary{
			State:    h.StateName,
			ExitCode: h.ExitCode,
			Outcome:  classify(h.ExitCode),
			Duration: h.Duration,
			Next:     h.TransitionedTo,
			Output:   h.Output,
		}
		summary.Steps = append(summary.Steps, step)
	}
	summary.Stats = computeStateStats(summary.Steps)

	if r.Error != "" {
		summary.Errors = append(summary.Errors, r.Error)
	}
	return summary
}

func classify(exitCode int) Outcome {
	switch exitCode {
	case 0:
		return OutcomeSucceeded
	case aerrors.ExitTimeout:
		return OutcomeTimedOut
	}
	return OutcomeFailed
}

// computeStateStats tallies up step outcomes.
func computeStateStats(steps []StepSummary) StateStats {
	stats := StateStats{Total: len(steps)}
	for _, s := range steps {
		switch s.Outcome {
		case OutcomeSucceeded:
			stats.Succeeded++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeTimedOut:
			stats.TimedOut++
		}
	}
	return stats
}
