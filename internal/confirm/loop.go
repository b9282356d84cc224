package confirm

import (
	"context"
	"time"

	"github.com/nerrad567/ringbridge/internal/clock"
)

// Default retry policy.
const (
	DefaultMaxRetries  = 12
	DefaultRetryDelay  = 10 * time.Second
	DefaultSettleDelay = time.Second
)

// Outcome is the result of a confirmation.
type Outcome int

// Confirmation outcomes.
const (
	Unknown Outcome = iota
	Success
	Failure
)

// String returns the outcome as recorded in logs and the command journal.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Target is a resolved remote device that can be mutated and queried.
type Target interface {
	Apply(ctx context.Context, action string) error
	State(ctx context.Context) (string, error)
}

// Resolver looks up the current handle for a device.
type Resolver func(ctx context.Context) (Target, error)

// Matcher reports whether a fetched state confirms the action.
type Matcher func(state string) bool

// Equals returns a Matcher accepting exactly want.
func Equals(want string) Matcher {
	return func(state string) bool { return state == want }
}

// Result describes a finished confirmation.
type Result struct {
	Outcome  Outcome
	Attempts int
	// LastState is the last state fetched, empty if none was.
	LastState string
	// Err is the last error seen, if any.
	Err error
}

// Logger is the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Loop. Zero values take the defaults.
type Options struct {
	MaxRetries  int
	RetryDelay  time.Duration
	SettleDelay time.Duration
	Clock       clock.Clock
}

// Loop runs confirmations with a fixed retry policy.
type Loop struct {
	maxRetries  int
	retryDelay  time.Duration
	settleDelay time.Duration
	clock       clock.Clock
	logger      Logger
}

// New creates a Loop.
func New(opts Options) *Loop {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Loop{
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		settleDelay: opts.SettleDelay,
		clock:       opts.Clock,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger.
func (l *Loop) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

// MaxRetries returns the attempt bound.
func (l *Loop) MaxRetries() int { return l.maxRetries }

// ApplyAndConfirm issues action against the device returned by resolve and
// polls until match accepts the device's state.
//
// An empty action or nil matcher means the action is not recognised: the
// result is Unknown and nothing is invoked. Remote errors count as a failed
// attempt. Cancelling ctx ends the loop with Failure.
func (l *Loop) ApplyAndConfirm(ctx context.Context, resolve Resolver, action string, match Matcher) Result {
	if action == "" || match == nil || resolve == nil {
		l.logger.Info("unrecognised action ignored", "action", action)
		return Result{Outcome: Unknown}
	}

	res := Result{Outcome: Failure}
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if attempt > 1 {
			if err := clock.Sleep(ctx, l.clock, l.retryDelay); err != nil {
				res.Err = err
				return res
			}
		}
		res.Attempts = attempt

		state, err := l.try(ctx, resolve, action)
		if err != nil {
			res.Err = err
			if ctx.Err() != nil {
				return res
			}
			l.logger.Warn("command attempt failed",
				"action", action,
				"attempt", attempt,
				"error", err,
			)
			continue
		}
		res.LastState = state

		if match(state) {
			l.logger.Info("command confirmed",
				"action", action,
				"attempt", attempt,
				"state", state,
			)
			res.Outcome = Success
			res.Err = nil
			return res
		}
		l.logger.Debug("command not yet confirmed",
			"action", action,
			"attempt", attempt,
			"state", state,
		)
	}

	l.logger.Warn("command not confirmed, giving up",
		"action", action,
		"attempts", res.Attempts,
		"last_state", res.LastState,
	)
	return res
}

// try runs one Issued -> Checking step.
func (l *Loop) try(ctx context.Context, resolve Resolver, action string) (string, error) {
	target, err := resolve(ctx)
	if err != nil {
		return "", err
	}
	if err := target.Apply(ctx, action); err != nil {
		return "", err
	}
	if err := clock.Sleep(ctx, l.clock, l.settleDelay); err != nil {
		return "", err
	}
	return target.State(ctx)
}
