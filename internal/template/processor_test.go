package template

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor() *Processor {
	return NewProcessor(StaticVariables{
		VarBranch:    "main",
		VarWorkspace: "project",
	}, nil)
}

func TestProcessCommandArgs_Substitutes(t *testing.T) {
	p := newTestProcessor()

	result := p.ProcessCommandArgs(context.Background(), "git", []string{"checkout", "-b", "{name}-{branch}"}, map[string]string{
		"name": "fix",
	})

	assert.True(t, result.ExecutionReady)
	assert.True(t, result.HasPlaceholders)
	assert.Empty(t, result.ValidationErrors)
	assert.Equal(t, "git", result.Command)
	assert.Equal(t, []string{"checkout", "-b", "fix-main"}, result.Args)
	assert.Equal(t, map[string]string{"name": "fix", "branch": "main"}, result.Substitutions)
}

func TestProcessCommandArgs_NoPlaceholders(t *testing.T) {
	p := newTestProcessor()

	result := p.ProcessCommandArgs(context.Background(), "echo", []string{"hi"}, nil)

	assert.True(t, result.ExecutionReady)
	assert.False(t, result.HasPlaceholders)
	assert.Empty(t, result.Substitutions)
	assert.Equal(t, []string{"hi"}, result.Args)
}

func TestProcessCommandArgs_RejectsInjectedParameter(t *testing.T) {
	p := newTestProcessor()

	result := p.ProcessCommandArgs(context.Background(), "echo {message}", nil, map[string]string{
		"message": "safe; rm -rf /",
	})

	assert.False(t, result.ExecutionReady)
	require.NotEmpty(t, result.ValidationErrors)
	assert.Contains(t, result.ValidationErrors[0], `"message"`)

	// The rejected value is never substituted
	assert.Equal(t, "echo {message}", result.Command)
	assert.NotContains(t, result.Substitutions, "message")
	assert.Equal(t, []string{"message"}, result.Unresolved)
}

func TestProcessCommandArgs_InvalidParameterName(t *testing.T) {
	p := newTestProcessor()

	result := p.ProcessCommandArgs(context.Background(), "echo", nil, map[string]string{
		"bad-name": "x",
	})

	assert.False(t, result.ExecutionReady)
	require.Len(t, result.ValidationErrors, 1)
	assert.Contains(t, result.ValidationErrors[0], "bad-name")
}

func TestProcessCommandArgs_DangerousTemplate(t *testing.T) {
	p := newTestProcessor()

	result := p.ProcessCommandArgs(context.Background(), "sh", []string{"-c", "echo {branch}; ls"}, nil)

	assert.False(t, result.ExecutionReady)
	require.NotEmpty(t, result.ValidationErrors)
	assert.True(t, strings.HasPrefix(result.ValidationErrors[0], "args[1]:"), result.ValidationErrors[0])
}

func TestProcess_Precedence(t *testing.T) {
	p := newTestProcessor()
	require.NoError(t, p.RegisterResolver("branch", func(context.Context) (string, error) {
		return "resolver", nil
	}))

	ctx := context.Background()

	got := p.Process(ctx, Request{Command: "{branch}"})
	assert.Equal(t, "resolver", got.Command, "resolver beats builtin")

	got = p.Process(ctx, Request{Command: "{branch}", Context: map[string]string{"branch": "context"}})
	assert.Equal(t, "context", got.Command, "context beats resolver")

	got = p.Process(ctx, Request{
		Command: "{branch}",
		Context: map[string]string{"branch": "context"},
		Params:  map[string]string{"branch": "cli"},
	})
	assert.Equal(t, "cli", got.Command, "CLI beats context")
}

func TestProcess_ResolverFailureSkipped(t *testing.T) {
	p := newTestProcessor()
	require.NoError(t, p.RegisterResolver("ticket", func(context.Context) (string, error) {
		return "", errors.New("tracker offline")
	}))

	result := p.Process(context.Background(), Request{Command: "echo {ticket}"})

	assert.True(t, result.ExecutionReady)
	assert.Equal(t, "echo {ticket}", result.Command)
	assert.Equal(t, []string{"ticket"}, result.Unresolved)
}

func TestRegisterResolver_Invalid(t *testing.T) {
	p := newTestProcessor()
	fn := func(context.Context) (string, error) { return "", nil }

	assert.Error(t, p.RegisterResolver("bad name", fn))
	assert.Error(t, p.RegisterResolver(strings.Repeat("x", 51), fn))
	assert.Error(t, p.RegisterResolver("ok", nil))
	assert.NoError(t, p.RegisterResolver("ok", fn))
}

func TestProcess_ContextValuesAreTrusted(t *testing.T) {
	p := newTestProcessor()

	// Workflow context values are not run through the injection blocklist
	result := p.Process(context.Background(), Request{
		Command: "echo",
		Args:    []string{"{filter}"},
		Context: map[string]string{"filter": "a|b"},
	})

	assert.True(t, result.ExecutionReady)
	assert.Equal(t, []string{"a|b"}, result.Args)
}

func TestProcess_NilBuiltins(t *testing.T) {
	p := NewProcessor(nil, nil)
	result := p.Process(context.Background(), Request{Command: "echo {branch}"})
	assert.Equal(t, "echo {branch}", result.Command)
	assert.Empty(t, p.Builtins(context.Background()))
}
