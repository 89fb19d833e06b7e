package retryable_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bjaus/retryable"
)

var errTest = errors.New("test error")

// fakeClock is a test clock that tracks sleep calls without actually sleeping.
// Timers scheduled with AfterFunc fire when Advance moves past them.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.mu.Lock()
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)
		c.mu.Unlock()
		return nil
	}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) retryable.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type classifiedError struct {
	resumable bool
}

func (e *classifiedError) Error() string   { return "classified error" }
func (e *classifiedError) Resumable() bool { return e.resumable }

func requireReason(t *testing.T, err error, want string) *retryable.RetryError {
	t.Helper()
	var re *retryable.RetryError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RetryError, got %T: %v", err, err)
	}
	if re.Reason != want {
		t.Fatalf("expected reason %q, got %q", want, re.Reason)
	}
	return re
}

func TestDo(t *testing.T) {
	t.Run("succeeds on first attempt", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		}, retryable.WithClock(newFakeClock()))

		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errTest
			}
			return nil
		}, retryable.WithClock(newFakeClock()))

		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("exhausts max attempts", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		},
			retryable.WithMaxAttempts(5),
			retryable.WithClock(newFakeClock()),
		)

		if !errors.Is(err, errTest) {
			t.Fatalf("expected errTest, got %v", err)
		}
		re := requireReason(t, err, retryable.ReasonMaxTries)
		if len(re.Errors) != 5 {
			t.Fatalf("expected 5 collected errors, got %d", len(re.Errors))
		}
		if attempts != 5 {
			t.Fatalf("expected 5 attempts, got %d", attempts)
		}
	})

	t.Run("stops immediately with Stop error", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return retryable.Stop(errTest)
		},
			retryable.WithMaxAttempts(5),
			retryable.WithClock(newFakeClock()),
		)

		re := requireReason(t, err, retryable.ReasonErrors)
		if re.Cause != errTest {
			t.Fatalf("expected cause errTest without Stop marker, got %v", re.Cause)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("stops on error classified as not resumable", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return &classifiedError{resumable: false}
		},
			retryable.WithMaxAttempts(5),
			retryable.WithClock(newFakeClock()),
		)

		requireReason(t, err, retryable.ReasonErrors)
		var ce *classifiedError
		if !errors.As(err, &ce) {
			t.Fatalf("expected classifiedError in chain, got %v", err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("retries error classified as resumable", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return &classifiedError{resumable: true}
		},
			retryable.WithMaxAttempts(4),
			retryable.WithClock(newFakeClock()),
		)

		requireReason(t, err, retryable.ReasonMaxTries)
		if attempts != 4 {
			t.Fatalf("expected 4 attempts, got %d", attempts)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0

		err := retryable.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errTest
		},
			retryable.WithMaxAttempts(10),
			retryable.WithDelay(time.Second),
			retryable.WithClock(newFakeClock()),
		)

		requireReason(t, err, retryable.ReasonCancelled)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled in chain, got %v", err)
		}
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("context deadline reports timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := retryable.Do(ctx, func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(100),
			retryable.WithDelay(time.Second),
		)

		requireReason(t, err, retryable.ReasonTimeout)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context.DeadlineExceeded in chain, got %v", err)
		}
	})

	t.Run("respects condition", func(t *testing.T) {
		attempts := 0
		nonRetryable := errors.New("non-retryable")

		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				return nonRetryable
			}
			return errTest
		},
			retryable.WithMaxAttempts(10),
			retryable.WithClock(newFakeClock()),
			retryable.If(func(err error) bool {
				return !errors.Is(err, nonRetryable)
			}),
		)

		if !errors.Is(err, nonRetryable) {
			t.Fatalf("expected nonRetryable, got %v", err)
		}
		requireReason(t, err, retryable.ReasonErrors)
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("IfNot skips matching errors", func(t *testing.T) {
		attempts := 0
		skipThis := errors.New("skip this error")

		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				return skipThis
			}
			return errTest
		},
			retryable.WithMaxAttempts(10),
			retryable.WithClock(newFakeClock()),
			retryable.IfNot(func(err error) bool {
				return errors.Is(err, skipThis)
			}),
		)

		if !errors.Is(err, skipThis) {
			t.Fatalf("expected skipThis, got %v", err)
		}
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("Not inverts condition", func(t *testing.T) {
		alwaysTrue := func(err error) bool { return true }
		alwaysFalse := func(err error) bool { return false }

		if retryable.Not(alwaysTrue)(errTest) {
			t.Fatal("expected Not(alwaysTrue) to return false")
		}
		if !retryable.Not(alwaysFalse)(errTest) {
			t.Fatal("expected Not(alwaysFalse) to return true")
		}
	})

	t.Run("nil func is rejected", func(t *testing.T) {
		err := retryable.Do(context.Background(), nil)
		if !errors.Is(err, retryable.ErrNilFactory) {
			t.Fatalf("expected ErrNilFactory, got %v", err)
		}
	})

	t.Run("panicking attempt is terminal", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			panic("boom")
		}, retryable.WithClock(newFakeClock()))

		requireReason(t, err, retryable.ReasonErrors)
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})
}

func TestDoValue(t *testing.T) {
	t.Run("returns value of first success", func(t *testing.T) {
		calls := 0
		v, err := retryable.DoValue(context.Background(), func(ctx context.Context) (string, error) {
			calls++
			if calls < 2 {
				return "", errTest
			}
			return "ok", nil
		},
			retryable.WithMaxAttempts(5),
			retryable.WithClock(newFakeClock()),
		)

		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if v != "ok" {
			t.Fatalf("expected ok, got %q", v)
		}
		if calls != 2 {
			t.Fatalf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("returns zero value on failure", func(t *testing.T) {
		v, err := retryable.DoValue(context.Background(), func(ctx context.Context) (int, error) {
			return 42, errTest
		},
			retryable.WithMaxAttempts(2),
			retryable.WithClock(newFakeClock()),
		)

		if err == nil {
			t.Fatal("expected error")
		}
		if v != 0 {
			t.Fatalf("expected zero value, got %d", v)
		}
	})
}

func TestPolicy(t *testing.T) {
	t.Run("reuses configuration", func(t *testing.T) {
		clock := newFakeClock()
		policy := retryable.New(
			retryable.WithMaxAttempts(2),
			retryable.WithClock(clock),
		)

		attempts1 := 0
		_ = policy.Do(context.Background(), func(ctx context.Context) error {
			attempts1++
			return errTest
		})

		attempts2 := 0
		_ = policy.Do(context.Background(), func(ctx context.Context) error {
			attempts2++
			return errTest
		})

		if attempts1 != 2 {
			t.Fatalf("expected 2 attempts for first call, got %d", attempts1)
		}
		if attempts2 != 2 {
			t.Fatalf("expected 2 attempts for second call, got %d", attempts2)
		}
	})

	t.Run("Never policy does not retry", func(t *testing.T) {
		attempts := 0
		err := retryable.Never().Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		}, retryable.WithClock(newFakeClock()))

		if !errors.Is(err, errTest) {
			t.Fatalf("expected errTest, got %v", err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("call options override policy", func(t *testing.T) {
		attempts := 0
		_ = retryable.Never().Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		},
			retryable.WithMaxAttempts(3),
			retryable.WithClock(newFakeClock()),
		)

		if attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("default policy backs off", func(t *testing.T) {
		clock := newFakeClock()
		attempts := 0
		_ = retryable.Default().Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		}, retryable.WithClock(clock))

		if attempts != retryable.DefaultMaxAttempts {
			t.Fatalf("expected %d attempts, got %d", retryable.DefaultMaxAttempts, attempts)
		}
		sleeps := clock.Sleeps()
		if len(sleeps) != 2 {
			t.Fatalf("expected 2 sleeps, got %v", sleeps)
		}
		for _, d := range sleeps {
			if d <= 0 {
				t.Fatalf("expected positive delays, got %v", sleeps)
			}
		}
	})
}

func TestHooks(t *testing.T) {
	t.Run("OnError called for every failure", func(t *testing.T) {
		var seen []int
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(3),
			retryable.WithClock(newFakeClock()),
			retryable.OnError(func(ctx context.Context, attempt int, err error) {
				seen = append(seen, attempt)
			}),
		)

		if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
			t.Fatalf("expected OnError for attempts [1 2 3], got %v", seen)
		}
	})

	t.Run("OnError does not alter control flow", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 2 {
				return errTest
			}
			return nil
		},
			retryable.WithClock(newFakeClock()),
			retryable.OnError(func(ctx context.Context, attempt int, err error) {}),
		)

		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	})

	t.Run("OnRetry called before each retry", func(t *testing.T) {
		var retryAttempts []int
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(3),
			retryable.WithClock(newFakeClock()),
			retryable.OnRetry(func(ctx context.Context, attempt int, err error, delay time.Duration) {
				retryAttempts = append(retryAttempts, attempt)
			}),
		)

		if len(retryAttempts) != 2 {
			t.Fatalf("expected 2 OnRetry calls, got %d", len(retryAttempts))
		}
		if retryAttempts[0] != 1 || retryAttempts[1] != 2 {
			t.Fatalf("expected attempts [1, 2], got %v", retryAttempts)
		}
	})

	t.Run("OnSuccess called with attempt count", func(t *testing.T) {
		var successAttempts int
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errTest
			}
			return nil
		},
			retryable.WithClock(newFakeClock()),
			retryable.OnSuccess(func(ctx context.Context, a int) {
				successAttempts = a
			}),
		)

		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if successAttempts != 3 {
			t.Fatalf("expected success on attempt 3, got %d", successAttempts)
		}
	})

	t.Run("OnExhausted called when attempts exhausted", func(t *testing.T) {
		var exhaustedAttempts int
		var exhaustedErr error

		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(3),
			retryable.WithClock(newFakeClock()),
			retryable.OnExhausted(func(ctx context.Context, a int, e error) {
				exhaustedAttempts = a
				exhaustedErr = e
			}),
		)

		if exhaustedAttempts != 3 {
			t.Fatalf("expected exhausted on attempt 3, got %d", exhaustedAttempts)
		}
		if !errors.Is(exhaustedErr, errTest) {
			t.Fatalf("expected exhaustedErr to be errTest, got %v", exhaustedErr)
		}
	})

	t.Run("OnSettled called once with final error", func(t *testing.T) {
		calls := 0
		var settledErr error
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			return retryable.Stop(errTest)
		},
			retryable.WithClock(newFakeClock()),
			retryable.OnSettled(func(ctx context.Context, attempts int, err error) {
				calls++
				settledErr = err
			}),
		)

		if calls != 1 {
			t.Fatalf("expected 1 OnSettled call, got %d", calls)
		}
		if settledErr != err {
			t.Fatalf("expected OnSettled to see %v, got %v", err, settledErr)
		}
	})

	t.Run("hooks accumulate", func(t *testing.T) {
		first, second := 0, 0
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return nil
		},
			retryable.WithClock(newFakeClock()),
			retryable.Options(
				retryable.OnSuccess(func(context.Context, int) { first++ }),
				retryable.OnSuccess(func(context.Context, int) { second++ }),
			),
		)

		if first != 1 || second != 1 {
			t.Fatalf("expected both hooks to run once, got %d and %d", first, second)
		}
	})
}

func TestMaxDuration(t *testing.T) {
	t.Run("stops when duration exceeded", func(t *testing.T) {
		clock := newFakeClock()
		attempts := 0

		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		},
			retryable.WithMaxAttempts(10),
			retryable.WithMaxDuration(2500*time.Millisecond),
			retryable.WithBackoff(retryable.Constant(time.Second)),
			retryable.WithClock(clock),
		)

		requireReason(t, err, retryable.ReasonTimeout)
		if attempts != 4 {
			t.Fatalf("expected 4 attempts, got %d", attempts)
		}
		sleeps := clock.Sleeps()
		want := []time.Duration{time.Second, time.Second, 500 * time.Millisecond}
		if len(sleeps) != len(want) {
			t.Fatalf("expected sleeps %v, got %v", want, sleeps)
		}
		for i := range want {
			if sleeps[i] != want[i] {
				t.Fatalf("expected sleeps %v, got %v", want, sleeps)
			}
		}
	})

	t.Run("coexists with max attempts", func(t *testing.T) {
		attempts := 0
		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		},
			retryable.WithMaxAttempts(2),
			retryable.WithMaxDuration(time.Hour),
			retryable.WithBackoff(retryable.Constant(time.Second)),
			retryable.WithClock(newFakeClock()),
		)

		requireReason(t, err, retryable.ReasonMaxTries)
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})
}

func TestDelay(t *testing.T) {
	t.Run("no delay by default", func(t *testing.T) {
		clock := newFakeClock()
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		}, retryable.WithClock(clock))

		if sleeps := clock.Sleeps(); len(sleeps) != 0 {
			t.Fatalf("expected no sleeps, got %v", sleeps)
		}
	})

	t.Run("constant delay between attempts", func(t *testing.T) {
		clock := newFakeClock()
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(3),
			retryable.WithDelay(250*time.Millisecond),
			retryable.WithClock(clock),
		)

		sleeps := clock.Sleeps()
		if len(sleeps) != 2 || sleeps[0] != 250*time.Millisecond || sleeps[1] != 250*time.Millisecond {
			t.Fatalf("expected two 250ms sleeps, got %v", sleeps)
		}
	})

	t.Run("NoDelay removes a configured backoff", func(t *testing.T) {
		clock := newFakeClock()
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		},
			retryable.WithBackoff(retryable.Constant(time.Second)),
			retryable.WithDelay(retryable.NoDelay),
			retryable.WithClock(clock),
		)

		if sleeps := clock.Sleeps(); len(sleeps) != 0 {
			t.Fatalf("expected no sleeps, got %v", sleeps)
		}
	})

	t.Run("gap between attempts is at least the delay", func(t *testing.T) {
		const delay = 20 * time.Millisecond
		var starts, ends []time.Time

		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			starts = append(starts, time.Now())
			defer func() { ends = append(ends, time.Now()) }()
			return errTest
		},
			retryable.WithMaxAttempts(3),
			retryable.WithDelay(delay),
		)

		if len(starts) != 3 {
			t.Fatalf("expected 3 attempts, got %d", len(starts))
		}
		for i := 1; i < len(starts); i++ {
			if gap := starts[i].Sub(ends[i-1]); gap < delay {
				t.Fatalf("attempt %d started %v after the previous one ended, want >= %v", i+1, gap, delay)
			}
		}
	})
}

func TestZeroMaxAttempts(t *testing.T) {
	t.Run("zero max attempts uses default", func(t *testing.T) {
		attempts := 0
		_ = retryable.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errTest
		},
			retryable.WithMaxAttempts(0),
			retryable.WithClock(newFakeClock()),
		)

		if attempts != retryable.DefaultMaxAttempts {
			t.Fatalf("expected %d attempts (default), got %d", retryable.DefaultMaxAttempts, attempts)
		}
	})
}

func TestRealClock(t *testing.T) {
	t.Run("real clock respects context cancellation during sleep", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_ = retryable.Do(ctx, func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(100),
			retryable.WithBackoff(retryable.Constant(time.Second)),
		)
		elapsed := time.Since(start)

		if elapsed > 500*time.Millisecond {
			t.Fatalf("expected early cancellation, but took %v", elapsed)
		}
	})

	t.Run("real clock with max duration", func(t *testing.T) {
		start := time.Now()

		err := retryable.Do(context.Background(), func(ctx context.Context) error {
			return errTest
		},
			retryable.WithMaxAttempts(100),
			retryable.WithMaxDuration(50*time.Millisecond),
			retryable.WithBackoff(retryable.Constant(10*time.Millisecond)),
		)

		elapsed := time.Since(start)

		requireReason(t, err, retryable.ReasonTimeout)
		if elapsed > 200*time.Millisecond {
			t.Fatalf("expected to stop within max duration, took %v", elapsed)
		}
	})
}
