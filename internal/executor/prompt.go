package executor

import (
	"context"
	"time"

	"github.com/aisanity/aisanity/internal/cli"
	aerrors "github.com/aisanity/aisanity/internal/errors"
)

// promptReadMargin is how much earlier than the executor timeout the
// terminal read gives up. The prompt script then exits on its own and the
// shell restores terminal echo; the executor kill only runs as a backstop.
const promptReadMargin = 250 * time.Millisecond

// confirmReadTimeout returns the terminal read timeout for a prompt with
// the given executor timeout. Zero stays zero.
func confirmReadTimeout(timeout time.Duration) time.Duration {
	if timeout <= 2*promptReadMargin {
		return timeout
	}
	return timeout - promptReadMargin
}

// ExecuteConfirmation shows a yes/no prompt on the terminal. The returned
// Result's exit code is 0 for yes and 1 for no; Enter picks the default.
// When timeout elapses the error is CMD_001.
func (e *Executor) ExecuteConfirmation(ctx context.Context, message string, defaultYes bool, timeout time.Duration) (*Result, error) {
	command, args, err := cli.ConfirmCommand(message, defaultYes, confirmReadTimeout(timeout))
	if err != nil {
		return nil, aerrors.Validation("message", err.Error())
	}

	result, err := e.ExecuteTUI(ctx, command, args, Options{Timeout: timeout, NoTimeout: timeout <= 0})
	if err == nil && result.ExitCode == cli.ExitReadTimeout {
		result.TimedOut = true
		return result, aerrors.CommandTimeout(command, timeout.Milliseconds())
	}
	return result, err
}

// ExecuteSelection shows a numbered list on the terminal and returns the
// chosen option's value, or "" when the user cancels. It waits for the user
// without a timeout; ctx cancellation still ends it.
func (e *Executor) ExecuteSelection(ctx context.Context, prompt string, options []cli.SelectOption) (string, error) {
	command, args, err := cli.SelectCommand(prompt, options)
	if err != nil {
		return "", aerrors.Validation("prompt", err.Error())
	}

	result, err := e.ExecuteTUI(ctx, command, args, selectionOptions())
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}
	return cli.ParseSelection(result.Stdout, options)
}

func selectionOptions() Options {
	return Options{CaptureStdout: true, NoTimeout: true}
}
