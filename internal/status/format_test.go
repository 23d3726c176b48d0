package status

import (
	"strings"
	"testing"
	"time"

	"github.com/aisanity/aisanity/internal/workflow"
)

func testSummary() *RunSummary {
	return NewRunSummary(&workflow.ExecutionResult{
		WorkflowName:  "deploy",
		RunID:         "run-123",
		Success:       false,
		FinalState:    "build",
		TotalDuration: 90 * time.Second,
		Error:         `[STATE_002] state "build" has no timeout transition`,
		StateHistory: []workflow.HistoryEntry{
			{StateName: "lint", ExitCode: 0, Duration: 200 * time.Millisecond, TransitionedTo: "build", Output: "ok\n"},
			{StateName: "build", ExitCode: 124, Duration: 90 * time.Second},
		},
	})
}

func TestFormatRunSummary(t *testing.T) {
	output := FormatRunSummary(testSummary(), FormatOptions{NoColor: true})

	for _, want := range []string{
		"Workflow: deploy",
		"Run:      run-123",
		"Status:   ✗ failed",
		"Final:    build",
		"Duration: 1m30s",
		"✓ 1 succeeded, ⏱ 1 timed out (2 executed)",
		"History:",
		"→ build",
		"exit 124",
		"(end)",
		"Errors:",
		"has no timeout transition",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q\n%s", want, output)
		}
	}

	if strings.Contains(output, "ok") {
		t.Error("command output should only be shown in verbose mode")
	}
}

func TestFormatRunSummaryVerbose(t *testing.T) {
	output := FormatRunSummary(testSummary(), FormatOptions{NoColor: true, Verbose: true})

	if !strings.Contains(output, "       ok") {
		t.Errorf("expected indented command output\n%s", output)
	}
}

func TestFormatRunSummaryQuiet(t *testing.T) {
	output := FormatRunSummary(testSummary(), FormatOptions{NoColor: true, Quiet: true})

	if !strings.Contains(output, "Status:   ✗ failed") {
		t.Error("quiet output should contain status")
	}
	if strings.Contains(output, "History:") {
		t.Error("quiet output should not contain history")
	}
}

func TestFormatSimulation(t *testing.T) {
	r := &workflow.SimulationResult{
		WorkflowName:   "deploy",
		StartState:     "build",
		FinalState:     "done",
		TotalEstimated: 31 * time.Second,
		Complexity:     workflow.ComplexityMedium,
		Confidence:     workflow.ConfidenceLow,
		Steps: []workflow.SimulatedStep{
			{StateName: "build", Command: "make", Args: []string{"build"}, Estimated: 30 * time.Second, Confidence: workflow.ConfidenceMedium, NextState: "confirm"},
			{StateName: "confirm", Command: "echo", Args: []string{"ok"}, Estimated: time.Second, Confidence: workflow.ConfidenceHigh, RequiresConfirmation: true, ConfirmationMessage: "Deploy?", NextState: "done"},
		},
		Warnings: []string{`state "confirm" requires confirmation`},
	}

	output := FormatSimulation(r, FormatOptions{NoColor: true})

	for _, want := range []string{
		"Dry run: deploy (from build)",
		"Estimated:  ~31s",
		"Complexity: medium",
		"Confidence: low",
		"1. build: make build ~30s (medium)",
		`? confirm "Deploy?"`,
		"Final state: done",
		`⚠ state "confirm" requires confirmation`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q\n%s", want, output)
		}
	}
}

func TestFormatSimulationIterationLimit(t *testing.T) {
	r := &workflow.SimulationResult{WorkflowName: "loop", StartState: "a", ReachedIterationLimit: true}

	output := FormatSimulation(r, FormatOptions{NoColor: true})
	if !strings.Contains(output, "stopped at the iteration limit") {
		t.Errorf("expected iteration limit notice\n%s", output)
	}
	if strings.Contains(output, "Final state:") {
		t.Error("a simulation cut short has no final state")
	}
}

func TestFormatReport(t *testing.T) {
	w := &workflow.Workflow{Name: "ci", InitialState: "test", States: map[string]*workflow.State{
		"test":  {Command: "make", Args: []string{"test"}, Transitions: workflow.Transitions{Success: "done"}},
		"done":  {Command: "echo"},
		"stray": {Command: "echo"},
	}}

	output := FormatReport(workflow.Inspect(w), FormatOptions{NoColor: true})

	for _, want := range []string{
		"✓ ci: valid",
		"Terminal states: done, stray",
		"Warnings:",
		`state "stray" is unreachable`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q\n%s", want, output)
		}
	}
}

func TestFormatReportInvalid(t *testing.T) {
	w := &workflow.Workflow{Name: "broken", InitialState: "missing", States: map[string]*workflow.State{
		"a": {Command: "true"},
	}}

	output := FormatReport(workflow.Inspect(w), FormatOptions{NoColor: true})

	if !strings.Contains(output, "✗ broken: invalid") {
		t.Errorf("expected invalid headline\n%s", output)
	}
	if !strings.Contains(output, `✗ initial state "missing" does not exist`) {
		t.Errorf("expected graph error\n%s", output)
	}
}

func TestFormatWorkflow(t *testing.T) {
	w := &workflow.Workflow{
		Name:          "deploy",
		Description:   "Ship it",
		InitialState:  "build",
		GlobalTimeout: 600000,
		States: map[string]*workflow.State{
			"build": {
				Command:     "make",
				Args:        []string{"build"},
				Timeout:     120000,
				Transitions: workflow.Transitions{Success: "ship", Failure: "done"},
			},
			"ship": {
				Command:      "kubectl",
				Confirmation: &workflow.Confirmation{Message: "Ship?", Timeout: 30000},
				Transitions:  workflow.Transitions{Success: "done"},
			},
			"done": {Command: "echo"},
		},
	}

	output := FormatWorkflow(w, FormatOptions{NoColor: true})

	for _, want := range []string{
		"Workflow: deploy",
		"Description: Ship it",
		"Initial state: build",
		"Global timeout: 10m0s",
		"build (initial)",
		"command: make build",
		"timeout: 2m0s",
		"success → ship",
		"failure → done",
		"done (terminal)",
		`confirm: "Ship?" (default no, timeout 30s)`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q\n%s", want, output)
		}
	}
}

func TestFormatWorkflowList(t *testing.T) {
	workflows := []*workflow.Workflow{
		{Name: "deploy", Description: "Ship it"},
		{Name: "hello"},
	}

	output := FormatWorkflowList(workflows, FormatOptions{NoColor: true})
	if !strings.Contains(output, "Found 2 workflow(s)") {
		t.Errorf("expected count\n%s", output)
	}
	if !strings.Contains(output, "deploy  Ship it") {
		t.Errorf("expected aligned description\n%s", output)
	}

	quiet := FormatWorkflowList(workflows, FormatOptions{Quiet: true})
	if quiet != "deploy\nhello\n" {
		t.Errorf("expected bare names, got %q", quiet)
	}

	if got := FormatWorkflowList(nil, FormatOptions{}); got != "No workflows defined\n" {
		t.Errorf("unexpected empty list output %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{250 * time.Millisecond, "250ms"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{2 * time.Hour, "2h0m"},
		{2*time.Hour + 30*time.Minute, "2h30m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.d)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, result, tt.expected)
		}
	}
}
