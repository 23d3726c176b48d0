// Package errors provides structured error types for aisanity.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes for aisanity operations.
const (
	// File errors
	CodeFileMissing    = "FILE_001" // Definition file does not exist
	CodeFilePermission = "FILE_002" // Definition file cannot be read
	CodeFileInvalid    = "FILE_003" // Definition file is not a regular readable file

	// Parse errors
	CodeParseError = "PARSE_001" // YAML syntax error

	// Validation errors
	CodeValidation       = "VALID_001" // Schema or semantic validation failed
	CodeWorkflowNotFound = "VALID_002" // Named workflow is not defined

	// State errors
	CodeStateNotFound   = "STATE_001" // State is not defined in the workflow
	CodeStateTransition = "STATE_002" // No transition defined for an outcome

	// Execution errors
	CodeExecution      = "EXEC_001" // Generic workflow execution failure
	CodeIterationLimit = "EXEC_002" // Maximum iteration limit reached

	// Command errors
	CodeCommandTimeout    = "CMD_001" // Command exceeded its timeout
	CodeResourceLimit     = "CMD_002" // Too many active processes
	CodeSpawnFailed       = "CMD_003" // Process could not be started
	CodeInjectionDetected = "CMD_004" // Argument matched the injection blocklist
	CodeCommandUnknown    = "CMD_005" // Unclassified command failure

	// Confirmation errors
	CodeConfirmationTimeout = "CONFIRM_001" // Confirmation prompt timed out

	// Argument errors
	CodeInvalidArgument = "ARG_001" // Invalid command-line argument
)

// Kind is the coarse error taxonomy used for exit codes and remediation.
type Kind string

const (
	KindFileMissing         Kind = "FileMissing"
	KindFilePermission      Kind = "FilePermission"
	KindFileInvalid         Kind = "FileInvalid"
	KindParse               Kind = "ParseError"
	KindValidation          Kind = "ValidationError"
	KindStateNotFound       Kind = "StateNotFound"
	KindStateTransition     Kind = "StateTransitionError"
	KindWorkflowExecution   Kind = "WorkflowExecutionError"
	KindCommandExecution    Kind = "CommandExecutionError"
	KindConfirmationTimeout Kind = "ConfirmationTimeout"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindUnknown             Kind = "Unknown"
)

var codeKinds = map[string]Kind{
	CodeFileMissing:         KindFileMissing,
	CodeFilePermission:      KindFilePermission,
	CodeFileInvalid:         KindFileInvalid,
	CodeParseError:          KindParse,
	CodeValidation:          KindValidation,
	CodeWorkflowNotFound:    KindValidation,
	CodeStateNotFound:       KindStateNotFound,
	CodeStateTransition:     KindStateTransition,
	CodeExecution:           KindWorkflowExecution,
	CodeIterationLimit:      KindWorkflowExecution,
	CodeCommandTimeout:      KindCommandExecution,
	CodeResourceLimit:       KindCommandExecution,
	CodeSpawnFailed:         KindCommandExecution,
	CodeInjectionDetected:   KindCommandExecution,
	CodeCommandUnknown:      KindCommandExecution,
	CodeConfirmationTimeout: KindConfirmationTimeout,
	CodeInvalidArgument:     KindInvalidArgument,
}

// AisanityError is the structured error type for aisanity operations.
type AisanityError struct {
	Code    string         `json:"code"`              // Error code (e.g., "VALID_001")
	Message string         `json:"message"`           // Human-readable message
	Details map[string]any `json:"details,omitempty"` // Context (field, path, state, ...)
	Cause   error          `json:"-"`                 // Wrapped error (not serialized)
}

// Error implements the error interface.
func (e *AisanityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AisanityError) Unwrap() error {
	return e.Cause
}

// Kind returns the taxonomy kind of the error code.
func (e *AisanityError) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindUnknown
}

// Detail returns a detail value, or nil.
func (e *AisanityError) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// WithDetail adds a detail to the error.
func (e *AisanityError) WithDetail(key string, value any) *AisanityError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *AisanityError) WithCause(err error) *AisanityError {
	e.Cause = err
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *AisanityError) MarshalJSON() ([]byte, error) {
	type alias AisanityError
	aux := struct {
		*alias
		Kind     Kind   `json:"kind"`
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
		Kind:  e.Kind(),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new AisanityError.
func New(code, message string) *AisanityError {
	return &AisanityError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AisanityError with formatted message.
func Newf(code, format string, args ...any) *AisanityError {
	return &AisanityError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with an AisanityError.
func Wrap(code, message string, err error) *AisanityError {
	return &AisanityError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted AisanityError.
func Wrapf(code string, err error, format string, args ...any) *AisanityError {
	return &AisanityError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// --- File Errors ---

// FileMissing creates an error for a missing definition file.
func FileMissing(path string) *AisanityError {
	return Newf(CodeFileMissing, "workflow file not found: %s", path).
		WithDetail("path", path)
}

// FilePermission creates an error for an unreadable definition file.
func FilePermission(path string, err error) *AisanityError {
	return Wrap(CodeFilePermission, "permission denied reading workflow file", err).
		WithDetail("path", path)
}

// FileInvalid creates an error for a definition path that is not a readable file.
func FileInvalid(path, reason string) *AisanityError {
	return Newf(CodeFileInvalid, "invalid workflow file %s: %s", path, reason).
		WithDetail("path", path)
}

// --- Parse / Validation Errors ---

// ParseError creates an error for YAML syntax failure. Line and column are
// zero when the parser did not supply them.
func ParseError(path string, line, column int, err error) *AisanityError {
	e := Wrap(CodeParseError, "failed to parse workflow file", err).
		WithDetail("path", path)
	if line > 0 {
		e.WithDetail("line", line)
		e.WithDetail("column", column)
	}
	return e
}

// Validation creates an error for a schema or semantic violation at field.
func Validation(field, message string) *AisanityError {
	msg := message
	if field != "" {
		msg = fmt.Sprintf("%s: %s", field, message)
	}
	return New(CodeValidation, msg).WithDetail("field", field)
}

// WorkflowNotFound creates an error for an undefined workflow name.
func WorkflowNotFound(name string, available []string) *AisanityError {
	return Newf(CodeWorkflowNotFound, "workflow %q not found", name).
		WithDetail("workflow", name).
		WithDetail("available", available)
}

// --- State Errors ---

// StateNotFound creates an error for an undefined state.
func StateNotFound(workflow, state string) *AisanityError {
	return Newf(CodeStateNotFound, "state %q not found in workflow %q", state, workflow).
		WithDetail("workflow", workflow).
		WithDetail("state", state)
}

// StateTransition creates an error for an outcome without a transition.
func StateTransition(state, outcome string, exitCode int) *AisanityError {
	return Newf(CodeStateTransition, "state %q has no %s transition (exit code %d)", state, outcome, exitCode).
		WithDetail("state", state).
		WithDetail("outcome", outcome).
		WithDetail("exit_code", exitCode)
}

// --- Execution Errors ---

// Execution creates a generic workflow execution error.
func Execution(message string, cause error) *AisanityError {
	return Wrap(CodeExecution, message, cause)
}

// IterationLimit creates an error for a run that hit the iteration ceiling.
func IterationLimit(limit int) *AisanityError {
	return Newf(CodeIterationLimit, "maximum iteration limit (%d) reached, possible infinite loop", limit).
		WithDetail("limit", limit)
}

// --- Command Errors ---

// CommandTimeout creates an error for a command that exceeded its timeout.
func CommandTimeout(command string, timeoutMs int64) *AisanityError {
	return Newf(CodeCommandTimeout, "command %q timed out after %dms", command, timeoutMs).
		WithDetail("command", command).
		WithDetail("timeout_ms", timeoutMs)
}

// ResourceLimit creates an error for exceeding the active process ceiling.
func ResourceLimit(limit int) *AisanityError {
	return Newf(CodeResourceLimit, "too many active processes (limit %d)", limit).
		WithDetail("limit", limit)
}

// SpawnFailed creates an error for a process that could not be started.
func SpawnFailed(command string, exitCode int, err error) *AisanityError {
	return Wrapf(CodeSpawnFailed, err, "failed to start %q", command).
		WithDetail("command", command).
		WithDetail("exit_code", exitCode)
}

// InjectionDetected creates an error for an argument matching the blocklist.
func InjectionDetected(command, value string) *AisanityError {
	return Newf(CodeInjectionDetected, "potential command injection in arguments to %q", command).
		WithDetail("command", command).
		WithDetail("value", value)
}

// ConfirmationTimeout creates an error for a prompt that timed out.
func ConfirmationTimeout(timeoutMs int64) *AisanityError {
	return Newf(CodeConfirmationTimeout, "confirmation timed out after %dms", timeoutMs).
		WithDetail("timeout_ms", timeoutMs)
}

// InvalidArgument creates an error for a bad command-line argument.
func InvalidArgument(arg, reason string) *AisanityError {
	return Newf(CodeInvalidArgument, "invalid argument %q: %s", arg, reason).
		WithDetail("argument", arg)
}

// HasCode reports whether any AisanityError in err's chain has the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		var aerr *AisanityError
		if !errors.As(err, &aerr) {
			return false
		}
		if aerr.Code == code {
			return true
		}
		err = aerr.Cause
	}
	return false
}

// CodeOf returns the error code if err is an AisanityError, empty string otherwise.
func CodeOf(err error) string {
	var aerr *AisanityError
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return ""
}

// KindOf returns the taxonomy kind of err.
func KindOf(err error) Kind {
	var aerr *AisanityError
	if errors.As(err, &aerr) {
		return aerr.Kind()
	}
	return KindUnknown
}
