package retryable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Factory produces one attempt of an operation. It is called fresh for every attempt
// and must not hand back a memoized result.
type Factory[T any] func(ctx context.Context) (T, error)

// Controller drives a Factory through bounded, strictly sequential attempts and
// settles a single Future. A Controller runs once; create one per logical operation.
type Controller[T any] struct {
	factory Factory[T]
	cfg     config
	future  *Future[T]
	once    sync.Once

	mu       sync.Mutex
	attempts int
	errs     []error
	started  bool
}

// outcome is the settled result of a single attempt.
type outcome[T any] struct {
	value T
	err   error
}

// NewController returns a controller for factory. It fails with ErrNilFactory when
// factory is nil.
func NewController[T any](factory Factory[T], opts ...Option) (*Controller[T], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	cfg := newConfig(opts)
	return &Controller[T]{
		factory: factory,
		cfg:     cfg,
		future:  newFuture[T](cfg.title),
	}, nil
}

// Start begins the run in a new goroutine and returns its Future. Later calls, and
// calls after Run, return the same Future without starting anything.
func (c *Controller[T]) Start(ctx context.Context) *Future[T] {
	c.once.Do(func() {
		c.markStarted()
		go c.run(ctx)
	})
	return c.future
}

// Run executes the run in the calling goroutine and returns its result. If the
// controller was already started, Run waits for that run instead.
func (c *Controller[T]) Run(ctx context.Context) (T, error) {
	c.once.Do(func() {
		c.markStarted()
		c.run(ctx)
	})
	return c.future.Wait()
}

// Attempts returns how many attempts have been started.
func (c *Controller[T]) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Errors returns a copy of the attempt errors collected so far, in attempt order.
func (c *Controller[T]) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]error, len(c.errs))
	copy(errs, c.errs)
	return errs
}

// Started reports whether Start or Run has been called.
func (c *Controller[T]) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Controller[T]) markStarted() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
}

func (c *Controller[T]) run(ctx context.Context) {
	runCtx, halt := context.WithCancelCause(ctx)
	defer halt(nil)

	log := c.cfg.logger.With().Str("operation", c.cfg.title).Logger()

	// Register before checking so a cancel racing with start is seen by one of them.
	if s := c.cfg.signal; s != nil {
		s.OnCancelled(func(reason string) {
			// halt first so the loop cannot start another attempt while hooks run
			halt(&CancelledError{Reason: reason})
			c.fail(ctx, log, reason, nil)
		})
		if s.IsCancelled() {
			c.fail(ctx, log, s.Reason(), nil)
			return
		}
	}

	var deadline time.Time
	if c.cfg.maxDuration > 0 {
		deadline = c.cfg.clock.Now().Add(c.cfg.maxDuration)
	}

	for {
		if runCtx.Err() != nil {
			c.interrupted(ctx, runCtx, log)
			return
		}
		if c.future.Settled() {
			return
		}

		attempt := c.nextAttempt()
		log.Debug().Int("attempt", attempt).Int("max_attempts", c.cfg.maxAttempts).Msg("starting attempt")

		res, ok := c.attempt(ctx, runCtx)
		if !ok {
			// the in-flight attempt finishes on its own; its outcome is discarded
			c.interrupted(ctx, runCtx, log)
			return
		}

		if res.err == nil {
			if c.settle(ctx, log, res.value, nil) {
				for _, fn := range c.cfg.onSuccess {
					fn(ctx, attempt)
				}
			}
			return
		}

		err := c.record(res.err)
		for _, fn := range c.cfg.onError {
			fn(ctx, attempt, err)
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("attempt failed")

		if !IsResumable(res.err) || (c.cfg.condition != nil && !c.cfg.condition(err)) {
			c.fail(ctx, log, ReasonErrors, err)
			return
		}

		if attempt >= c.cfg.maxAttempts {
			for _, fn := range c.cfg.onExhausted {
				fn(ctx, attempt, err)
			}
			if c.cfg.leavePending {
				log.Debug().Int("attempt", attempt).Msg("attempts exhausted, leaving result pending")
				<-runCtx.Done()
				c.interrupted(ctx, runCtx, log)
				return
			}
			c.fail(ctx, log, ReasonMaxTries, nil)
			return
		}

		delay := c.delay(attempt)

		if c.cfg.maxDuration > 0 {
			remaining := deadline.Sub(c.cfg.clock.Now())
			if remaining <= 0 {
				for _, fn := range c.cfg.onExhausted {
					fn(ctx, attempt, err)
				}
				c.fail(ctx, log, ReasonTimeout, nil)
				return
			}
			delay = min(delay, remaining)
		}

		for _, fn := range c.cfg.onRetry {
			fn(ctx, attempt, err, delay)
		}

		if delay > 0 {
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("waiting before next attempt")
			if err := c.cfg.clock.Sleep(runCtx, delay); err != nil {
				c.interrupted(ctx, runCtx, log)
				return
			}
		}
	}
}

// attempt invokes the factory in its own goroutine so that a cancellation can settle
// the run while the attempt is still in flight. It returns false when runCtx ended
// first.
func (c *Controller[T]) attempt(ctx, runCtx context.Context) (outcome[T], bool) {
	ch := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome[T]{err: Stop(fmt.Errorf("retryable: attempt panicked: %v", r))}
			}
		}()
		v, err := c.factory(ctx)
		ch <- outcome[T]{value: v, err: err}
	}()

	select {
	case res := <-ch:
		// both cases may be ready at once; a halted run discards the outcome
		if runCtx.Err() != nil {
			return outcome[T]{}, false
		}
		return res, true
	case <-runCtx.Done():
		return outcome[T]{}, false
	}
}

func (c *Controller[T]) nextAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.attempts
}

// record appends err, without any Stop marker, and returns what was stored.
func (c *Controller[T]) record(err error) error {
	err = unwrapStop(err)
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	return err
}

func (c *Controller[T]) delay(attempt int) time.Duration {
	if c.cfg.backoff == nil {
		return 0
	}
	return max(c.cfg.backoff.Delay(attempt), 0)
}

// interrupted settles a run whose context ended, either by its signal or by the
// caller.
func (c *Controller[T]) interrupted(ctx, runCtx context.Context, log zerolog.Logger) {
	var cancelled *CancelledError
	switch cause := context.Cause(runCtx); {
	case errors.As(cause, &cancelled):
		c.fail(ctx, log, cancelled.Reason, nil)
	case errors.Is(cause, context.DeadlineExceeded):
		c.fail(ctx, log, ReasonTimeout, ctx.Err())
	default:
		c.fail(ctx, log, ReasonCancelled, ctx.Err())
	}
}

func (c *Controller[T]) fail(ctx context.Context, log zerolog.Logger, reason string, cause error) bool {
	var zero T
	return c.settle(ctx, log, zero, &RetryError{
		Errors: c.Errors(),
		Reason: reason,
		Cause:  cause,
	})
}

// settle resolves the Future and runs OnSettled hooks. It reports false when the
// Future had already settled.
func (c *Controller[T]) settle(ctx context.Context, log zerolog.Logger, value T, err error) bool {
	if !c.future.settle(value, err) {
		return false
	}

	attempts := c.Attempts()
	if err != nil {
		reason, _ := ReasonOf(err)
		log.Debug().Err(err).Int("attempts", attempts).Str("reason", reason).Msg("operation failed")
	} else {
		log.Debug().Int("attempts", attempts).Msg("operation succeeded")
	}

	for _, fn := range c.cfg.onSettled {
		fn(ctx, attempts, err)
	}
	return true
}
