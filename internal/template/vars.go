// Package template substitutes {name} placeholders in workflow commands and
// validates templates and variable values against shell-injection patterns.
package template

import (
	"regexp"
	"sort"
	"strings"
)

// Limits for templates and variables.
const (
	MaxTemplateLength = 1000
	MaxNameLength     = 50
	MaxValueLength    = 255
)

// identPattern is the grammar of a placeholder name.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsIdentifier reports whether name is a valid placeholder name.
func IsIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// token is one lexical element of a template.
type token struct {
	literal string // Text to emit verbatim
	name    string // Placeholder name, empty for literals
	raw     string // Original text of a placeholder
}

// scan splits a template into literal text and {name} placeholders.
// "{{x}}" decodes to the literal "{x}" and is never a placeholder. A brace
// whose contents are not an identifier is literal text.
func scan(tmpl string) []token {
	var tokens []token
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); {
		if tmpl[i] != '{' {
			lit.WriteByte(tmpl[i])
			i++
			continue
		}

		if strings.HasPrefix(tmpl[i:], "{{") {
			if end := strings.Index(tmpl[i+2:], "}}"); end >= 0 {
				lit.WriteString("{" + tmpl[i+2:i+2+end] + "}")
				i += end + 4
				continue
			}
			lit.WriteString("{{")
			i += 2
			continue
		}

		end := strings.IndexByte(tmpl[i+1:], '}')
		if end < 0 {
			lit.WriteString(tmpl[i:])
			break
		}
		name := tmpl[i+1 : i+1+end]
		if !IsIdentifier(name) {
			lit.WriteByte('{')
			i++
			continue
		}
		flush()
		tokens = append(tokens, token{name: name, raw: tmpl[i : i+end+2]})
		i += end + 2
	}
	flush()
	return tokens
}

// Substitute replaces every {name} in tmpl with vars[name]. Unknown names
// are left untouched so partially-resolved templates survive a dry run.
// Substitution is single pass: values are never re-expanded.
func Substitute(tmpl string, vars map[string]string) string {
	out, _, _ := substitute(tmpl, vars)
	return out
}

// substitute returns the expanded template plus the names it replaced and
// the names it could not resolve.
func substitute(tmpl string, vars map[string]string) (string, []string, []string) {
	var b strings.Builder
	var used, missing []string

	for _, tok := range scan(tmpl) {
		if tok.name == "" {
			b.WriteString(tok.literal)
			continue
		}
		if v, ok := vars[tok.name]; ok {
			b.WriteString(v)
			used = append(used, tok.name)
			continue
		}
		b.WriteString(tok.raw)
		missing = append(missing, tok.name)
	}
	return b.String(), used, missing
}

// Placeholders returns the distinct placeholder names in tmpl, sorted.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	for _, tok := range scan(tmpl) {
		if tok.name != "" {
			seen[tok.name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasPlaceholders reports whether tmpl contains at least one placeholder.
func HasPlaceholders(tmpl string) bool {
	for _, tok := range scan(tmpl) {
		if tok.name != "" {
			return true
		}
	}
	return false
}

// Merge overlays variable maps left to right; later maps win.
func Merge(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
