package retryable

import (
	"context"
	"time"
)

// Func is the function signature for retryable operations without a result value.
type Func func(ctx context.Context) error

// Policy holds reusable retry settings. Safe for concurrent use.
type Policy struct {
	maxAttempts int
	maxDuration time.Duration
	backoff     Backoff
	clock       Clock
}

// Default values.
const (
	DefaultMaxAttempts = 3
)

var defaultClock Clock = realClock{}

// New creates a Policy from the policy-level options: attempts, duration, backoff
// and clock. Call-level options are ignored.
func New(opts ...Option) *Policy {
	cfg := newConfig(opts)
	return &Policy{
		maxAttempts: cfg.maxAttempts,
		maxDuration: cfg.maxDuration,
		backoff:     cfg.backoff,
		clock:       cfg.clock,
	}
}

// Never returns a policy that does not retry.
func Never() *Policy {
	return New(WithMaxAttempts(1))
}

// Default returns a policy with sensible defaults for network calls.
func Default() *Policy {
	return New(
		WithMaxAttempts(DefaultMaxAttempts),
		WithBackoff(WithJitter(0.2, WithCap(10*time.Second, Exponential(100*time.Millisecond)))),
	)
}

// WithPolicy applies the settings of p. Options given after it override them.
func WithPolicy(p *Policy) Option {
	return func(c *config) {
		if p == nil {
			return
		}
		c.maxAttempts = p.maxAttempts
		c.maxDuration = p.maxDuration
		c.backoff = p.backoff
		c.clock = p.clock
	}
}

// Do executes fn with retry using this policy's configuration.
func (p *Policy) Do(ctx context.Context, fn Func, opts ...Option) error {
	return Do(ctx, fn, append([]Option{WithPolicy(p)}, opts...)...)
}

// Do executes fn with retry. Failures are reported as *RetryError.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	if fn == nil {
		return ErrNilFactory
	}
	_, err := DoValue(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// DoValue executes fn with retry and returns the value of the first successful attempt.
func DoValue[T any](ctx context.Context, fn Factory[T], opts ...Option) (T, error) {
	c, err := NewController(fn, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Run(ctx)
}
