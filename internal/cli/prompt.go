// Package cli builds the shell commands used for interactive prompts. The
// prompts read from the controlling terminal, not stdin, so they work when
// stdin is redirected.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// MaxMessageLength bounds prompt text.
const MaxMessageLength = 500

// Shell is the interpreter for generated prompt scripts.
const Shell = "bash"

// ttyDevice is the controlling terminal.
const ttyDevice = "/dev/tty"

// ExitReadTimeout is the exit code of a confirm prompt whose read timed out.
const ExitReadTimeout = 124

// Suffix returns the bracketed default indicator for a yes/no prompt.
func Suffix(defaultYes bool) string {
	if defaultYes {
		return "[Y/n]"
	}
	return "[y/N]"
}

// ValidateMessage rejects prompt text that is too long or contains control
// characters.
func ValidateMessage(msg string) error {
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("message exceeds %d characters (got %d)", MaxMessageLength, len(msg))
	}
	for _, r := range msg {
		if unicode.IsControl(r) {
			return fmt.Errorf("message contains control character %q", r)
		}
	}
	return nil
}

// EscapeMessage escapes msg for a double-quoted bash string.
func EscapeMessage(msg string) string {
	var b strings.Builder
	for _, r := range msg {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
		case '\n', '\r':
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConfirmCommand returns a command that prints msg with a default indicator
// and reads one key from the terminal. y/Y exits 0, n/N exits 1. Enter, any
// other key or a failed read exits with the code for the default. When the
// read times out it exits ExitReadTimeout. A zero timeout waits indefinitely.
func ConfirmCommand(msg string, defaultYes bool, timeout time.Duration) (string, []string, error) {
	if err := ValidateMessage(msg); err != nil {
		return "", nil, err
	}

	defaultCode := 1
	if defaultYes {
		defaultCode = 0
	}

	readTimeout := ""
	if timeout > 0 {
		readTimeout = fmt.Sprintf("-t %.3f ", timeout.Seconds())
	}

	var s strings.Builder
	fmt.Fprintf(&s, "printf '%%s %%s ' \"%s\" \"%s\" >%s\n", EscapeMessage(msg), Suffix(defaultYes), ttyDevice)
	fmt.Fprintf(&s, "read -r -s -n 1 %sans <%s\n", readTimeout, ttyDevice)
	s.WriteString("rc=$?\n")
	// read exits above 128 when -t expires
	fmt.Fprintf(&s, "if [ $rc -gt 128 ]; then printf '\\n' >%s; exit %d; fi\n", ttyDevice, ExitReadTimeout)
	fmt.Fprintf(&s, "if [ $rc -ne 0 ]; then printf '\\n' >%s; exit %d; fi\n", ttyDevice, defaultCode)
	fmt.Fprintf(&s, "printf '%%s\\n' \"$ans\" >%s\n", ttyDevice)
	fmt.Fprintf(&s, "case \"$ans\" in\n  y|Y) exit 0 ;;\n  n|N) exit 1 ;;\n  *) exit %d ;;\nesac\n", defaultCode)

	return Shell, []string{"-c", s.String()}, nil
}

// SelectOption represents an option in a selection list.
type SelectOption struct {
	Value string // The value to return if selected
	Label string // The display label
}

// SelectCommand returns a command that displays a numbered list on the
// terminal and prints the raw response line to stdout.
func SelectCommand(prompt string, options []SelectOption) (string, []string, error) {
	if len(options) == 0 {
		return "", nil, fmt.Errorf("no options provided")
	}
	if err := ValidateMessage(prompt); err != nil {
		return "", nil, err
	}

	var s strings.Builder
	fmt.Fprintf(&s, "{\n  printf '%%s\\n\\n' \"%s\"\n", EscapeMessage(prompt))
	for i, opt := range options {
		if err := ValidateMessage(opt.Label); err != nil {
			return "", nil, fmt.Errorf("option %d: %w", i+1, err)
		}
		fmt.Fprintf(&s, "  printf '  %%d) %%s\\n' %d \"%s\"\n", i+1, EscapeMessage(opt.Label))
	}
	fmt.Fprintf(&s, "  printf '\\nEnter number (or q to cancel): '\n} >%s\n", ttyDevice)
	fmt.Fprintf(&s, "read -r choice <%s || exit 1\n", ttyDevice)
	s.WriteString("printf '%s\\n' \"$choice\"\n")

	return Shell, []string{"-c", s.String()}, nil
}

// ParseSelection maps a response line to an option value. An empty response
// or q/quit/cancel returns "" with no error.
func ParseSelection(response string, options []SelectOption) (string, error) {
	response = strings.TrimSpace(strings.ToLower(response))

	if response == "" || response == "q" || response == "quit" || response == "cancel" {
		return "", nil
	}

	num, err := strconv.Atoi(response)
	if err != nil || num < 1 || num > len(options) {
		return "", fmt.Errorf("invalid selection: %s", response)
	}

	return options[num-1].Value, nil
}
