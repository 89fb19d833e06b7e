package retryable

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Condition determines whether an error should be retried.
type Condition func(error) bool

// OnErrorFunc is called after every failed attempt, before the error is classified.
type OnErrorFunc func(ctx context.Context, attempt int, err error)

// OnRetryFunc is called before waiting for the next attempt.
type OnRetryFunc func(ctx context.Context, attempt int, err error, delay time.Duration)

// OnSuccessFunc is called when an attempt succeeds.
type OnSuccessFunc func(ctx context.Context, attempts int)

// OnExhaustedFunc is called when the attempt ceiling or the time budget is reached.
type OnExhaustedFunc func(ctx context.Context, attempts int, err error)

// OnSettledFunc is called exactly once per run with the final error, nil on success.
type OnSettledFunc func(ctx context.Context, attempts int, err error)

// config holds all retry configuration.
type config struct {
	// Policy-level options
	maxAttempts int
	maxDuration time.Duration
	backoff     Backoff
	clock       Clock

	// Call-level options
	signal       *Signal
	condition    Condition
	logger       zerolog.Logger
	title        string
	leavePending bool
	onError      []OnErrorFunc
	onRetry      []OnRetryFunc
	onSuccess    []OnSuccessFunc
	onExhausted  []OnExhaustedFunc
	onSettled    []OnSettledFunc
}

func newConfig(opts []Option) config {
	cfg := config{
		maxAttempts: DefaultMaxAttempts,
		clock:       defaultClock,
		logger:      zerolog.Nop(),
		title:       DefaultTitle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = DefaultMaxAttempts
	}
	if cfg.clock == nil {
		cfg.clock = defaultClock
	}
	return cfg
}

// Option configures retry behavior.
type Option func(*config)

// Options bundles several options into one.
func Options(opts ...Option) Option {
	return func(c *config) {
		for _, opt := range opts {
			if opt != nil {
				opt(c)
			}
		}
	}
}

// WithMaxAttempts sets the maximum number of attempts. Values below 1 select
// DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

// WithMaxDuration sets the maximum total duration for all attempts.
// The run ends with ReasonTimeout when it is exceeded, even if attempts remain.
func WithMaxDuration(d time.Duration) Option {
	return func(c *config) {
		c.maxDuration = d
	}
}

// WithBackoff sets the delay strategy between attempts.
func WithBackoff(b Backoff) Option {
	return func(c *config) {
		c.backoff = b
	}
}

// WithDelay waits d between attempts. NoDelay, or any negative value, removes the wait.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		if d < 0 {
			c.backoff = nil
			return
		}
		c.backoff = Constant(d)
	}
}

// WithClock sets the clock for time operations. Useful for testing.
func WithClock(clock Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithSignal subscribes the run to s. Cancelling s ends the run with the signal's
// reason, even while an attempt is in flight.
func WithSignal(s *Signal) Option {
	return func(c *config) {
		c.signal = s
	}
}

// WithLogger sets the logger used for attempt-level debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTitle names the operation on its Future and in log fields.
func WithTitle(title string) Option {
	return func(c *config) {
		if title != "" {
			c.title = title
		}
	}
}

// WithPendingOnExhaustion keeps the result unsettled after the last attempt fails.
// The run then only ends when its Signal or context does.
func WithPendingOnExhaustion() Option {
	return func(c *config) {
		c.leavePending = true
	}
}

// If sets the condition that determines whether an error should be retried.
// If the condition returns false, the retry loop stops immediately.
func If(cond Condition) Option {
	return func(c *config) {
		c.condition = cond
	}
}

// IfNot sets a condition where matching errors are NOT retried.
// This is equivalent to If(Not(cond)).
func IfNot(cond Condition) Option {
	return If(Not(cond))
}

// Not inverts a condition.
func Not(cond Condition) Condition {
	return func(err error) bool {
		return !cond(err)
	}
}

// OnError adds a hook called with every failed attempt. It cannot change control flow.
func OnError(fn OnErrorFunc) Option {
	return func(c *config) {
		c.onError = append(c.onError, fn)
	}
}

// OnRetry adds a hook called before each wait between attempts.
func OnRetry(fn OnRetryFunc) Option {
	return func(c *config) {
		c.onRetry = append(c.onRetry, fn)
	}
}

// OnSuccess adds a hook called when the operation succeeds.
func OnSuccess(fn OnSuccessFunc) Option {
	return func(c *config) {
		c.onSuccess = append(c.onSuccess, fn)
	}
}

// OnExhausted adds a hook called when attempts or the time budget run out.
func OnExhausted(fn OnExhaustedFunc) Option {
	return func(c *config) {
		c.onExhausted = append(c.onExhausted, fn)
	}
}

// OnSettled adds a hook called once when the run's result settles.
func OnSettled(fn OnSettledFunc) Option {
	return func(c *config) {
		c.onSettled = append(c.onSettled, fn)
	}
}
