// Package confirm gates workflow states behind timed yes/no prompts. A
// request resolves exactly once: confirmed or declined by the user, the
// configured default on timeout, confirmed by override, or the default
// when the prompt could not run.
package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/aisanity/aisanity/internal/cli"
	"github.com/aisanity/aisanity/internal/config"
	aerrors "github.com/aisanity/aisanity/internal/errors"
	"github.com/aisanity/aisanity/internal/executor"
	"github.com/aisanity/aisanity/internal/logging"
)

// DefaultMessage is shown when a request has no message.
const DefaultMessage = "Continue?"

// settleTime bounds how long a timed-out prompt is given to exit after its
// context is cancelled.
const settleTime = 250 * time.Millisecond

// fallbackTimeout applies when neither the request nor the configuration
// sets a timeout.
const fallbackTimeout = 30 * time.Second

// Method records how a confirmation was resolved.
type Method string

const (
	MethodUser     Method = "user"     // The user answered
	MethodTimeout  Method = "timeout"  // No answer in time; default applied
	MethodOverride Method = "override" // Skipped by --yes
	MethodError    Method = "error"    // Prompt failed; default applied
)

// Runner runs the terminal prompt. *executor.Executor implements it.
type Runner interface {
	ExecuteConfirmation(ctx context.Context, message string, defaultYes bool, timeout time.Duration) (*executor.Result, error)
}

// Request describes one confirmation.
type Request struct {
	Message       string
	Timeout       time.Duration // Zero uses the configured default
	DefaultAccept bool
	Skip          bool // Resolve immediately as confirmed
}

// Result is the resolution of a Request.
type Result struct {
	Confirmed bool          `json:"confirmed"`
	Method    Method        `json:"method"`
	TimedOut  bool          `json:"timedOut,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"` // Set for timeout and error resolutions
}

// Confirmer resolves confirmation requests through a Runner.
type Confirmer struct {
	runner    Runner
	cfg       config.ConfirmationConfig
	countdown *Countdown
	logger    *slog.Logger
}

// Option configures a Confirmer.
type Option func(*Confirmer)

// WithConfig sets the timeout bounds and default.
func WithConfig(cfg config.ConfirmationConfig) Option {
	return func(c *Confirmer) { c.cfg = cfg }
}

// WithCountdown draws a countdown while waiting. nil disables it.
func WithCountdown(cd *Countdown) Option {
	return func(c *Confirmer) { c.countdown = cd }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Confirmer) { c.logger = logger }
}

// New creates a Confirmer using the default configuration and no countdown.
func New(runner Runner, opts ...Option) *Confirmer {
	c := &Confirmer{
		runner: runner,
		cfg:    config.Default().Confirmation,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// Confirm resolves req. The only error is an invalid message, reported
// before anything is shown.
func (c *Confirmer) Confirm(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Skip {
		c.logger.Debug("confirmation skipped", "message", req.Message)
		return &Result{Confirmed: true, Method: MethodOverride}, nil
	}

	if err := cli.ValidateMessage(req.Message); err != nil {
		return nil, aerrors.Validation("confirmation.message", err.Error())
	}
	message := req.Message
	if message == "" {
		message = DefaultMessage
	}

	timeout := c.clamp(req.Timeout)

	stop := c.countdown.Start(timeout)
	defer stop()

	promptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *executor.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := c.runner.ExecuteConfirmation(promptCtx, message, req.DefaultAccept, timeout)
		done <- outcome{r, err}
	}()

	var res *Result
	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && promptCtx.Err() == context.DeadlineExceeded {
			// The prompt saw our deadline before we did.
			res = c.timedOut(timeout, req.DefaultAccept)
		} else {
			res = c.resolve(o.result, o.err, req.DefaultAccept, timeout)
		}
	case <-promptCtx.Done():
		if ctx.Err() != nil {
			res = c.failed(ctx.Err(), req.DefaultAccept)
		} else {
			res = c.timedOut(timeout, req.DefaultAccept)
		}
		select {
		case <-done:
		case <-time.After(settleTime):
			c.logger.Debug("confirmation prompt still running after timeout")
		}
	}

	res.Duration = time.Since(start)
	c.logger.Info("confirmation resolved",
		"confirmed", res.Confirmed,
		"method", res.Method,
		"duration", res.Duration,
	)
	return res, nil
}

func (c *Confirmer) resolve(r *executor.Result, err error, defaultAccept bool, timeout time.Duration) *Result {
	switch {
	case err == nil && r != nil:
		return &Result{Confirmed: r.ExitCode == 0, Method: MethodUser}
	case aerrors.HasCode(err, aerrors.CodeCommandTimeout):
		return c.timedOut(timeout, defaultAccept)
	default:
		return c.failed(err, defaultAccept)
	}
}

func (c *Confirmer) timedOut(timeout time.Duration, defaultAccept bool) *Result {
	return &Result{
		Confirmed: defaultAccept,
		Method:    MethodTimeout,
		TimedOut:  true,
		Err:       aerrors.ConfirmationTimeout(timeout.Milliseconds()),
	}
}

func (c *Confirmer) failed(err error, defaultAccept bool) *Result {
	c.logger.Warn("confirmation prompt failed, using default", "default", defaultAccept, "error", err)
	return &Result{Confirmed: defaultAccept, Method: MethodError, Err: err}
}

// clamp applies the default and keeps the timeout within the configured
// bounds, warning when the request was out of range.
func (c *Confirmer) clamp(d time.Duration) time.Duration {
	if d <= 0 {
		d = c.cfg.DefaultTimeout
	}
	if d <= 0 {
		d = fallbackTimeout
	}
	switch {
	case c.cfg.MinTimeout > 0 && d < c.cfg.MinTimeout:
		c.logger.Warn("confirmation timeout below minimum, clamping", "requested", d, "min", c.cfg.MinTimeout)
		return c.cfg.MinTimeout
	case c.cfg.MaxTimeout > 0 && d > c.cfg.MaxTimeout:
		c.logger.Warn("confirmation timeout above maximum, clamping", "requested", d, "max", c.cfg.MaxTimeout)
		return c.cfg.MaxTimeout
	}
	return d
}
