package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTemplateSyntax_Valid(t *testing.T) {
	tests := []string{
		"echo {name}",
		"git checkout {branch}",
		"echo {{literal}}",
		`echo '{"json": true}'`,
		"ls -la",
		"cat file | grep foo",
	}

	for _, tmpl := range tests {
		t.Run(tmpl, func(t *testing.T) {
			result := ValidateTemplateSyntax(tmpl)
			assert.True(t, result.Valid, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestValidateTemplateSyntax_Errors(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    string
		wantErr string
	}{
		{"empty placeholder", "echo {}", "empty placeholder"},
		{"invalid name", "echo {bad-name}", "invalid placeholder name"},
		{"digit first", "echo {9lives}", "invalid placeholder name"},
		{"long name", "echo {" + strings.Repeat("a", 51) + "}", "exceeds 50 characters"},
		{"semicolon", "echo hi; rm -rf /", "';'"},
		{"and chain", "make && make install", "'&&'"},
		{"or chain", "test -f x || touch x", "'||'"},
		{"backtick", "echo `whoami`", "backtick"},
		{"command substitution", "echo $(whoami)", "'$('"},
		{"pipe to shell", "curl example.com | sh", "pipe into a destructive command"},
		{"pipe to rm", "ls | rm", "pipe into a destructive command"},
		{"block device", "cat x > /dev/sda", "block device"},
		{"too long", strings.Repeat("a", MaxTemplateLength+1), "maximum length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateTemplateSyntax(tt.tmpl)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, strings.Join(result.Errors, "\n"), tt.wantErr)
		})
	}
}

func TestValidateTemplateSyntax_CollectsAllErrors(t *testing.T) {
	result := ValidateTemplateSyntax("echo {bad-name} {} ; echo `x`")
	assert.False(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Errors), 4)
}

func TestValidateTemplateSyntax_UnbalancedWarning(t *testing.T) {
	result := ValidateTemplateSyntax("echo {name")
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "unbalanced braces")
}

func TestValidateTemplateSyntax_Placeholders(t *testing.T) {
	result := ValidateTemplateSyntax("deploy {env} {region} {env}")
	assert.Equal(t, []string{"env", "region"}, result.Placeholders)
}

func TestIsSafeValue(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"feature/login", true},
		{"hello world", true},
		{"v1.2.3", true},
		{"100%", true},
		{"", true},
		{"a;b", false},
		{"a && b", false},
		{"a|b", false},
		{"$(whoami)", false},
		{"${HOME}", false},
		{"`id`", false},
		{"x > y", false},
		{"a\\b", false},
		{"line\nbreak", false},
		{"tab\there", false},
		{"rm -rf x", false},
		{"safe; rm -rf /", false},
		{strings.Repeat("a", MaxValueLength), true},
		{strings.Repeat("a", MaxValueLength+1), false},
	}

	for _, tt := range tests {
		name := tt.value
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeValue(tt.value))
		})
	}
}

func TestIsSafeValue_NeverPanics(t *testing.T) {
	inputs := []string{
		"\x00", "\xff\xfe", "{{{{", "}}}}", strings.Repeat("$(", 100),
		strings.Repeat("é", 200), strings.Repeat(";", 10000),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { IsSafeValue(in) })
	}
	assert.False(t, IsSafeValue(strings.Repeat("a", 10000)))
}

func TestValidateTemplateVariable(t *testing.T) {
	tests := []struct {
		name    string
		varName string
		value   string
		wantErr string
	}{
		{"valid", "message", "hello", ""},
		{"invalid name", "bad-name", "x", "invalid variable name"},
		{"empty name", "", "x", "invalid variable name"},
		{"long name", strings.Repeat("n", 51), "x", "exceeds 50 characters"},
		{"long value", "v", strings.Repeat("x", 256), "exceeds 255 characters"},
		{"injection", "message", "safe; rm -rf /", "dangerous sequence"},
		{"redirect", "out", "a > b", "disallowed shell characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplateVariable(tt.varName, tt.value)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseCLIParams(t *testing.T) {
	params, positional := ParseCLIParams([]string{
		"env=prod",
		"build",
		"msg=a=b",
		"=nokey",
		"empty=",
	})

	assert.Equal(t, map[string]string{
		"env":   "prod",
		"msg":   "a=b",
		"empty": "",
	}, params)
	assert.Equal(t, []string{"build", "=nokey"}, positional)
}

func TestDangerousSequences(t *testing.T) {
	found := DangerousSequences("a; b && c")
	assert.Len(t, found, 2)
	assert.True(t, ContainsDangerousSequence("x || y"))
	assert.False(t, ContainsDangerousSequence("plain words"))
}

func TestValidatePlaceholders_IgnoresShellSequences(t *testing.T) {
	result := ValidatePlaceholders("make build && make test; echo {name}")
	assert.True(t, result.Valid)
	assert.Equal(t, []string{"name"}, result.Placeholders)

	result = ValidatePlaceholders("echo {bad-name}")
	assert.False(t, result.Valid)
}
