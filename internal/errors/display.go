package errors

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Process exit codes. Scripts may branch on these.
const (
	ExitSuccess         = 0
	ExitGeneral         = 1
	ExitValidation      = 2
	ExitFileNotFound    = 3
	ExitPermission      = 4
	ExitTimeout         = 124
	ExitCannotExecute   = 126
	ExitCommandNotFound = 127
	ExitInvalidArgument = 128
)

// MaxMessageLength bounds sanitized user-facing messages.
const MaxMessageLength = 500

var codeExitCodes = map[string]int{
	CodeFileMissing:         ExitFileNotFound,
	CodeFilePermission:      ExitPermission,
	CodeFileInvalid:         ExitValidation,
	CodeParseError:          ExitValidation,
	CodeValidation:          ExitValidation,
	CodeWorkflowNotFound:    ExitValidation,
	CodeStateNotFound:       ExitValidation,
	CodeInjectionDetected:   ExitValidation,
	CodeCommandTimeout:      ExitTimeout,
	CodeConfirmationTimeout: ExitTimeout,
	CodeSpawnFailed:         ExitCommandNotFound,
	CodeInvalidArgument:     ExitInvalidArgument,
}

var codeSuggestions = map[string]string{
	CodeFileMissing:         "Create .aisanity-workflows.yml in the workspace root, or run from the workspace directory",
	CodeFilePermission:      "Check the file permissions of your workflow definition file",
	CodeFileInvalid:         "Make sure the workflow definition path points to a regular YAML file",
	CodeParseError:          "Fix the YAML syntax at the reported line and column",
	CodeValidation:          "Check your workflow definition file for validation errors (run 'aisanity validate')",
	CodeWorkflowNotFound:    "Run 'aisanity ls' to see the available workflows",
	CodeStateNotFound:       "Run 'aisanity show <workflow>' to see the defined states",
	CodeStateTransition:     "Add a transition for this outcome, or fix the failing command",
	CodeIterationLimit:      "Check the workflow for a transition cycle without an exit",
	CodeCommandTimeout:      "Increase the state's timeout, or add a timeout transition",
	CodeResourceLimit:       "Wait for running commands to finish, or raise executor.max_concurrent",
	CodeSpawnFailed:         "Check that the command is installed and on your PATH",
	CodeInjectionDetected:   "Remove shell metacharacters from the supplied values",
	CodeConfirmationTimeout: "Answer the prompt sooner, or pass --yes to skip confirmations",
	CodeInvalidArgument:     "Pass template variables as key=value",
}

// ExitCode returns the process exit code for err. The most specific code in
// the error chain wins, so an execution error caused by a timeout exits 124.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	for cur := err; cur != nil; {
		var aerr *AisanityError
		if !errors.As(cur, &aerr) {
			break
		}
		if aerr.Code == CodeSpawnFailed {
			if code, ok := aerr.Detail("exit_code").(int); ok && code > 0 {
				return code
			}
		}
		if code, ok := codeExitCodes[aerr.Code]; ok {
			return code
		}
		cur = aerr.Cause
	}
	return ExitGeneral
}

// Suggestion returns a remediation hint for err, or empty string.
func Suggestion(err error) string {
	for cur := err; cur != nil; {
		var aerr *AisanityError
		if !errors.As(cur, &aerr) {
			break
		}
		if s, ok := codeSuggestions[aerr.Code]; ok {
			return s
		}
		cur = aerr.Cause
	}
	return ""
}

// UserMessage returns a sanitized message for CLI output, followed by a
// suggestion when one is known.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(Sanitize(err.Error()))
	if s := Suggestion(err); s != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(s)
	}
	return b.String()
}

var (
	envRefPattern    = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)
	envAssignPattern = regexp.MustCompile(`\b([A-Z_][A-Z0-9_]{2,})=\S+`)
	ipv4Pattern      = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Sanitize strips sensitive-looking content from a message before display:
// home directories become ~, environment references and assignments are
// redacted, IPv4 addresses are masked and long messages are truncated.
func Sanitize(msg string) string {
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		msg = strings.ReplaceAll(msg, home, "~")
	}
	msg = envAssignPattern.ReplaceAllString(msg, "$1=[REDACTED]")
	msg = envRefPattern.ReplaceAllString(msg, "$$[REDACTED]")
	msg = ipv4Pattern.ReplaceAllString(msg, "[IP]")

	runes := []rune(msg)
	if len(runes) > MaxMessageLength {
		msg = fmt.Sprintf("%s...", string(runes[:MaxMessageLength]))
	}
	return msg
}
