package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/template"
)

// Confidence is how much an estimate can be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Complexity is a coarse rating of a simulated run.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

const (
	defaultEstimate   = 5 * time.Second
	perArgPenalty     = 50 * time.Millisecond
	longOperation     = 30 * time.Second
	sleepCommand      = "sleep"
	maxSleepEstimate  = 24 * time.Hour
	dangerousCategory = "potentially dangerous command"
)

type estimate struct {
	prefix     []string
	duration   time.Duration
	confidence Confidence
}

// estimates maps command prefixes to typical durations. The longest
// matching prefix wins.
var estimates = []estimate{
	{[]string{"echo"}, 10 * time.Millisecond, ConfidenceHigh},
	{[]string{"printf"}, 10 * time.Millisecond, ConfidenceHigh},
	{[]string{"true"}, 10 * time.Millisecond, ConfidenceHigh},
	{[]string{"false"}, 10 * time.Millisecond, ConfidenceHigh},
	{[]string{"pwd"}, 10 * time.Millisecond, ConfidenceHigh},
	{[]string{"ls"}, 50 * time.Millisecond, ConfidenceHigh},
	{[]string{"cat"}, 50 * time.Millisecond, ConfidenceHigh},
	{[]string{"mkdir"}, 50 * time.Millisecond, ConfidenceHigh},
	{[]string{"cp"}, 200 * time.Millisecond, ConfidenceMedium},
	{[]string{"git"}, time.Second, ConfidenceMedium},
	{[]string{"git", "status"}, 500 * time.Millisecond, ConfidenceHigh},
	{[]string{"git", "checkout"}, time.Second, ConfidenceHigh},
	{[]string{"git", "commit"}, time.Second, ConfidenceHigh},
	{[]string{"git", "add"}, 500 * time.Millisecond, ConfidenceHigh},
	{[]string{"git", "fetch"}, 3 * time.Second, ConfidenceMedium},
	{[]string{"git", "pull"}, 5 * time.Second, ConfidenceMedium},
	{[]string{"git", "push"}, 5 * time.Second, ConfidenceMedium},
	{[]string{"git", "clone"}, 30 * time.Second, ConfidenceLow},
	{[]string{"npm", "install"}, 60 * time.Second, ConfidenceLow},
	{[]string{"npm", "ci"}, 60 * time.Second, ConfidenceLow},
	{[]string{"npm", "test"}, 30 * time.Second, ConfidenceMedium},
	{[]string{"npm", "run"}, 15 * time.Second, ConfidenceMedium},
	{[]string{"npm", "run", "build"}, 30 * time.Second, ConfidenceMedium},
	{[]string{"yarn", "install"}, 45 * time.Second, ConfidenceLow},
	{[]string{"go", "build"}, 20 * time.Second, ConfidenceMedium},
	{[]string{"go", "test"}, 30 * time.Second, ConfidenceMedium},
	{[]string{"go", "vet"}, 10 * time.Second, ConfidenceMedium},
	{[]string{"make"}, 30 * time.Second, ConfidenceLow},
	{[]string{"docker", "build"}, 2 * time.Minute, ConfidenceLow},
	{[]string{"docker", "run"}, 10 * time.Second, ConfidenceLow},
	{[]string{"docker", "compose", "up"}, 30 * time.Second, ConfidenceLow},
	{[]string{"kubectl"}, 3 * time.Second, ConfidenceMedium},
	{[]string{"kubectl", "apply"}, 5 * time.Second, ConfidenceMedium},
	{[]string{"terraform", "plan"}, 30 * time.Second, ConfidenceLow},
	{[]string{"terraform", "apply"}, 2 * time.Minute, ConfidenceLow},
	{[]string{"curl"}, 2 * time.Second, ConfidenceMedium},
	{[]string{"bash"}, defaultEstimate, ConfidenceLow},
	{[]string{"sh"}, defaultEstimate, ConfidenceLow},
}

// dangerousSubstrings flag commands worth a second look before running.
var dangerousSubstrings = []string{
	"rm -rf",
	"rm -fr",
	"sudo ",
	"mkfs",
	"dd if=",
	"chmod 777",
	"chmod -R 777",
	"> /dev/sd",
	"git push --force",
	"git push -f",
	"git reset --hard",
	"kubectl delete",
	"terraform destroy",
	"DROP TABLE",
}

// estimateCommand returns the estimated duration of command with args.
func estimateCommand(command string, args []string) (time.Duration, Confidence) {
	fields := strings.Fields(command)
	if len(fields) > 0 {
		fields[0] = filepath.Base(fields[0])
	}
	tokens := append(fields, args...)
	if len(tokens) == 0 {
		return defaultEstimate, ConfidenceLow
	}

	if tokens[0] == sleepCommand && len(tokens) > 1 {
		if secs, err := strconv.ParseFloat(strings.TrimSuffix(tokens[1], "s"), 64); err == nil && secs >= 0 {
			// Clamp before converting; large values overflow time.Duration.
			if secs > maxSleepEstimate.Seconds() {
				return maxSleepEstimate, ConfidenceHigh
			}
			return time.Duration(secs * float64(time.Second)), ConfidenceHigh
		}
	}

	best := -1
	for i, e := range estimates {
		if len(e.prefix) > len(tokens) {
			continue
		}
		match := true
		for j, p := range e.prefix {
			if tokens[j] != p {
				match = false
				break
			}
		}
		if match && (best < 0 || len(e.prefix) > len(estimates[best].prefix)) {
			best = i
		}
	}

	if best < 0 {
		return defaultEstimate + time.Duration(len(tokens)-1)*perArgPenalty, ConfidenceLow
	}
	e := estimates[best]
	extra := len(tokens) - len(e.prefix)
	return e.duration + time.Duration(extra)*perArgPenalty, e.confidence
}

// SimulatedStep is one state visited by a dry run.
type SimulatedStep struct {
	StateName            string            `json:"stateName"`
	Command              string            `json:"command"`
	Args                 []string          `json:"args"`
	Estimated            time.Duration     `json:"estimatedDuration"`
	Confidence           Confidence        `json:"confidence"`
	RequiresConfirmation bool              `json:"requiresConfirmation"`
	ConfirmationMessage  string            `json:"confirmationMessage,omitempty"`
	Substitutions        map[string]string `json:"substitutions,omitempty"`
	Unresolved           []string          `json:"unresolved,omitempty"`
	ValidationErrors     []string          `json:"validationErrors,omitempty"`
	NextState            string            `json:"nextState,omitempty"`
}

// SimulationResult is the report of a dry run.
type SimulationResult struct {
	WorkflowName          string          `json:"workflowName"`
	StartState            string          `json:"startState"`
	FinalState            string          `json:"finalState"`
	Steps                 []SimulatedStep `json:"steps"`
	TotalEstimated        time.Duration   `json:"totalEstimatedDuration"`
	Complexity            Complexity      `json:"complexity"`
	Confidence            Confidence      `json:"confidence"`
	Warnings              []string        `json:"warnings,omitempty"`
	ReachedIterationLimit bool            `json:"reachedIterationLimit,omitempty"`
}

// SimulateExecution walks the workflow from the current state following
// only success transitions. Templates are resolved and durations estimated
// but no command or prompt is run, and the machine's state is unchanged.
func (m *StateMachine) SimulateExecution(ctx context.Context, opts ExecOptions) (*SimulationResult, error) {
	start := m.CurrentState()
	r := &SimulationResult{
		WorkflowName: m.workflow.Name,
		StartState:   start,
	}

	m.mu.Lock()
	ctxVars := template.Merge(m.contextVars)
	m.mu.Unlock()
	vars := m.context.Variables()

	lowCount, confirmations := 0, 0
	name := start
	for {
		if len(r.Steps) >= m.maxIterations {
			r.ReachedIterationLimit = true
			r.Warnings = append(r.Warnings, fmt.Sprintf("maximum iteration limit (%d) reached; the success path loops", m.maxIterations))
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state := m.workflow.States[name]
		if state == nil {
			return nil, aerrors.StateNotFound(m.workflow.Name, name)
		}

		cr := m.processor.Process(ctx, template.Request{
			Command: state.Command,
			Args:    state.Args,
			Context: ctxVars,
			Params:  m.params,
		})
		d, conf := estimateCommand(cr.Command, cr.Args)

		step := SimulatedStep{
			StateName:        name,
			Command:          cr.Command,
			Args:             cr.Args,
			Estimated:        d,
			Confidence:       conf,
			Substitutions:    cr.Substitutions,
			Unresolved:       cr.Unresolved,
			ValidationErrors: cr.ValidationErrors,
			NextState:        state.Transitions.Success,
		}
		if c := state.Confirmation; c != nil && !opts.Yes {
			step.RequiresConfirmation = true
			step.ConfirmationMessage = template.Substitute(c.Message, vars)
			confirmations++
			r.Warnings = append(r.Warnings, fmt.Sprintf("state %q requires confirmation", name))
		}

		if d > longOperation {
			r.Warnings = append(r.Warnings, fmt.Sprintf("state %q: long-running operation (~%s)", name, d.Round(time.Second)))
		}
		if len(cr.Unresolved) > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("state %q: undefined variables: %s", name, strings.Join(cr.Unresolved, ", ")))
		}
		for _, msg := range cr.ValidationErrors {
			r.Warnings = append(r.Warnings, fmt.Sprintf("state %q: %s", name, msg))
		}
		line := strings.TrimSpace(cr.Command + " " + strings.Join(cr.Args, " "))
		for _, s := range dangerousSubstrings {
			if strings.Contains(line, s) {
				r.Warnings = append(r.Warnings, fmt.Sprintf("state %q: %s (contains %q)", name, dangerousCategory, strings.TrimSpace(s)))
			}
		}

		if conf == ConfidenceLow {
			lowCount++
		}
		r.TotalEstimated += d
		r.Steps = append(r.Steps, step)
		r.FinalState = name

		if state.Transitions.Success == "" {
			break
		}
		name = state.Transitions.Success
	}

	r.Complexity = rateComplexity(r.TotalEstimated, len(m.workflow.States), confirmations, lowCount, len(r.Steps))
	r.Confidence = overallConfidence(r.Steps, lowCount)
	return r, nil
}

func rateComplexity(total time.Duration, states, confirmations, low, steps int) Complexity {
	score := 0
	switch {
	case total > 5*time.Minute:
		score += 3
	case total > time.Minute:
		score += 2
	case total > 10*time.Second:
		score++
	}
	switch {
	case states > 20:
		score += 2
	case states > 5:
		score++
	}
	switch {
	case confirmations > 2:
		score += 2
	case confirmations > 0:
		score++
	}
	if steps > 0 {
		ratio := float64(low) / float64(steps)
		switch {
		case ratio > 0.5:
			score += 2
		case ratio > 0.25:
			score++
		}
	}

	switch {
	case score >= 5:
		return ComplexityHigh
	case score >= 2:
		return ComplexityMedium
	}
	return ComplexityLow
}

func overallConfidence(steps []SimulatedStep, low int) Confidence {
	if len(steps) == 0 {
		return ConfidenceLow
	}
	if float64(low)/float64(len(steps)) > 0.5 {
		return ConfidenceLow
	}
	for _, s := range steps {
		if s.Confidence != ConfidenceHigh {
			return ConfidenceMedium
		}
	}
	return ConfidenceHigh
}
