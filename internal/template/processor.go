package template

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aisanity/aisanity/internal/logging"
)

// ResolverFunc lazily computes a custom variable.
type ResolverFunc func(ctx context.Context) (string, error)

// Request is the input to Processor.Process.
type Request struct {
	Command string
	Args    []string
	Context map[string]string // Workflow context variables (trusted)
	Params  map[string]string // CLI parameters (validated)
}

// CommandResult is a command after template processing.
type CommandResult struct {
	Command          string            `json:"command"`
	Args             []string          `json:"args"`
	Substitutions    map[string]string `json:"substitutions"` // Variables actually used
	Unresolved       []string          `json:"unresolved,omitempty"`
	HasPlaceholders  bool              `json:"hasPlaceholders"`
	ExecutionReady   bool              `json:"executionReady"`
	ValidationErrors []string          `json:"validationErrors,omitempty"`
}

// Processor merges variable layers and substitutes them into commands.
// Layers, lowest precedence first: builtins, custom resolvers, workflow
// context, CLI parameters.
type Processor struct {
	builtins VariableSource
	logger   *slog.Logger

	mu        sync.RWMutex
	resolvers map[string]ResolverFunc
}

// NewProcessor creates a Processor. builtins may be nil.
func NewProcessor(builtins VariableSource, logger *slog.Logger) *Processor {
	return &Processor{
		builtins:  builtins,
		logger:    logging.OrDiscard(logger),
		resolvers: make(map[string]ResolverFunc),
	}
}

// RegisterResolver adds a custom variable computed on every Process call.
func (p *Processor) RegisterResolver(name string, fn ResolverFunc) error {
	if !IsIdentifier(name) || len(name) > MaxNameLength {
		return fmt.Errorf("invalid resolver name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("resolver %q is nil", name)
	}
	p.mu.Lock()
	p.resolvers[name] = fn
	p.mu.Unlock()
	return nil
}

// Builtins returns the builtin layer alone.
func (p *Processor) Builtins(ctx context.Context) map[string]string {
	if p.builtins == nil {
		return map[string]string{}
	}
	return p.builtins.Variables(ctx)
}

// resolved returns builtins overlaid with custom resolver output.
func (p *Processor) resolved(ctx context.Context) map[string]string {
	vars := p.Builtins(ctx)

	p.mu.RLock()
	names := make([]string, 0, len(p.resolvers))
	for name := range p.resolvers {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		p.mu.RLock()
		fn := p.resolvers[name]
		p.mu.RUnlock()

		value, err := fn(ctx)
		if err != nil {
			p.logger.Warn("custom variable resolver failed", "variable", name, "error", err)
			continue
		}
		vars[name] = value
	}
	return vars
}

// ProcessCommandArgs substitutes builtins and validated CLI parameters into
// command and args.
func (p *Processor) ProcessCommandArgs(ctx context.Context, command string, args []string, cliParams map[string]string) *CommandResult {
	return p.Process(ctx, Request{Command: command, Args: args, Params: cliParams})
}

// Process validates the request's CLI parameters and any placeholder-bearing
// template, then substitutes the merged variables into the command and each
// argument independently. Invalid parameters are excluded from substitution
// and mark the result not ready; nothing is returned as an error.
func (p *Processor) Process(ctx context.Context, req Request) *CommandResult {
	result := &CommandResult{
		Substitutions: make(map[string]string),
	}

	params := make(map[string]string, len(req.Params))
	for _, name := range sortedKeys(req.Params) {
		value := req.Params[name]
		if err := ValidateTemplateVariable(name, value); err != nil {
			result.ValidationErrors = append(result.ValidationErrors, fmt.Sprintf("parameter %q: %v", name, err))
			continue
		}
		params[name] = value
	}

	vars := Merge(p.resolved(ctx), req.Context, params)

	templates := append([]string{req.Command}, req.Args...)
	for i, tmpl := range templates {
		if !HasPlaceholders(tmpl) {
			continue
		}
		result.HasPlaceholders = true

		check := ValidateTemplateSyntax(tmpl)
		for _, msg := range check.Errors {
			result.ValidationErrors = append(result.ValidationErrors, fmt.Sprintf("%s: %s", templateField(i), msg))
		}
	}

	unresolved := make(map[string]bool)
	substituteOne := func(tmpl string) string {
		out, used, missing := substitute(tmpl, vars)
		for _, name := range used {
			result.Substitutions[name] = vars[name]
		}
		for _, name := range missing {
			unresolved[name] = true
		}
		return out
	}

	result.Command = substituteOne(req.Command)
	result.Args = make([]string, len(req.Args))
	for i, arg := range req.Args {
		result.Args[i] = substituteOne(arg)
	}
	for name := range unresolved {
		result.Unresolved = append(result.Unresolved, name)
	}
	sort.Strings(result.Unresolved)

	result.ExecutionReady = len(result.ValidationErrors) == 0
	if !result.ExecutionReady {
		p.logger.Debug("command not execution ready", "command", req.Command, "errors", result.ValidationErrors)
	}
	return result
}

func templateField(i int) string {
	if i == 0 {
		return "command"
	}
	return fmt.Sprintf("args[%d]", i-1)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
