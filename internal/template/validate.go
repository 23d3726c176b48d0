package template

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// SyntaxResult is the outcome of validating a template. All problems are
// collected so a workflow author sees them in one pass.
type SyntaxResult struct {
	Valid        bool
	Errors       []string
	Warnings     []string
	Placeholders []string
}

func (r *SyntaxResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *SyntaxResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type dangerousPattern struct {
	re   *regexp.Regexp
	desc string
}

// dangerousPatterns is the shell-sequence blocklist shared by template and
// value validation.
var dangerousPatterns = []dangerousPattern{
	{regexp.MustCompile(`;`), "command separator ';'"},
	{regexp.MustCompile(`&&`), "command chaining '&&'"},
	{regexp.MustCompile(`\|\|`), "command chaining '||'"},
	{regexp.MustCompile("`"), "backtick command substitution"},
	{regexp.MustCompile(`\$\(`), "command substitution '$('"},
	{regexp.MustCompile(`\|\s*(rm|sh|bash|zsh|dd|mkfs|shred|sudo|chmod|chown|curl|wget|nc|eval|xargs)\b`), "pipe into a destructive command"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|disk)`), "redirect to a block device"},
}

// valueBlocklist is the whole-string scan applied to variable values on top
// of the dangerous-sequence detector.
var valueBlocklist = regexp.MustCompile("[;&|`<>\\\\]|\\$\\(|\\$\\{|\\brm\\s+-[a-zA-Z]*[rf]")

// placeholderLike matches brace groups that look like an attempted
// placeholder: no whitespace, quotes or JSON punctuation inside.
var placeholderLike = regexp.MustCompile(`\{([^{}\s"':,]*)\}`)

// DangerousSequences returns the descriptions of every blocklisted shell
// sequence found in s.
func DangerousSequences(s string) []string {
	var found []string
	for _, p := range dangerousPatterns {
		if p.re.MatchString(s) {
			found = append(found, p.desc)
		}
	}
	return found
}

// ContainsDangerousSequence reports whether s contains a blocklisted sequence.
func ContainsDangerousSequence(s string) bool {
	for _, p := range dangerousPatterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}

// IsSafeValue reports whether value may be substituted into a command. It
// never panics; values longer than MaxValueLength are rejected regardless
// of content.
func IsSafeValue(value string) bool {
	if len(value) > MaxValueLength {
		return false
	}
	if hasControlChars(value) {
		return false
	}
	if valueBlocklist.MatchString(value) {
		return false
	}
	return !ContainsDangerousSequence(value)
}

// ValidateTemplateSyntax checks length, placeholder names and the
// dangerous-sequence blocklist.
func ValidateTemplateSyntax(tmpl string) *SyntaxResult {
	result := ValidatePlaceholders(tmpl)
	for _, desc := range DangerousSequences(tmpl) {
		result.addError("template contains dangerous sequence: %s", desc)
	}
	return result
}

// ValidatePlaceholders checks length and placeholder names only. Workflow
// files are checked with it at load time, since a literal shell command
// there is the author's choice.
func ValidatePlaceholders(tmpl string) *SyntaxResult {
	result := &SyntaxResult{Valid: true}

	if len(tmpl) > MaxTemplateLength {
		result.addError("template exceeds maximum length of %d characters (got %d)", MaxTemplateLength, len(tmpl))
	}

	// Escaped braces are literals and exempt from placeholder checks.
	unescaped := stripEscapedBraces(tmpl)
	for _, m := range placeholderLike.FindAllStringSubmatch(unescaped, -1) {
		name := m[1]
		switch {
		case name == "":
			result.addError("empty placeholder '{}'")
		case !IsIdentifier(name):
			result.addError("invalid placeholder name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
		case len(name) > MaxNameLength:
			result.addError("placeholder name %q exceeds %d characters", name, MaxNameLength)
		}
	}

	if strings.Count(unescaped, "{") != strings.Count(unescaped, "}") {
		result.addWarning("unbalanced braces")
	}

	result.Placeholders = Placeholders(tmpl)
	return result
}

// ValidateTemplateVariable checks a variable name and value.
func ValidateTemplateVariable(name, value string) error {
	if !IsIdentifier(name) {
		return fmt.Errorf("invalid variable name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("variable name %q exceeds %d characters", name, MaxNameLength)
	}
	if len(value) > MaxValueLength {
		return fmt.Errorf("value for %q exceeds %d characters", name, MaxValueLength)
	}
	if !IsSafeValue(value) {
		if found := DangerousSequences(value); len(found) > 0 {
			return fmt.Errorf("value for %q contains dangerous sequence: %s", name, strings.Join(found, ", "))
		}
		return fmt.Errorf("value for %q contains disallowed shell characters", name)
	}
	return nil
}

// ParseCLIParams splits command-line tokens into key=value parameters and
// positional tokens. Tokens with an empty key are positional.
func ParseCLIParams(tokens []string) (map[string]string, []string) {
	params := make(map[string]string)
	var positional []string
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			positional = append(positional, tok)
			continue
		}
		params[key] = value
	}
	return params, positional
}

func stripEscapedBraces(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "{{") {
			if end := strings.Index(s[i+2:], "}}"); end >= 0 {
				i += end + 4
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
