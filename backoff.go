package retryable

import (
	"math"
	"math/rand/v2"
	"time"
)

// NoDelay passed to WithDelay starts the next attempt as soon as the previous one failed.
const NoDelay time.Duration = -1

// Backoff calculates the wait before the attempt following attempt.
// A negative result means no wait.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// BackoffFunc is an adapter that allows a function to be used as a Backoff.
type BackoffFunc func(attempt int) time.Duration

// Delay implements Backoff.
func (f BackoffFunc) Delay(attempt int) time.Duration {
	return f(attempt)
}

// Constant returns a backoff that always waits d.
func Constant(d time.Duration) Backoff {
	return BackoffFunc(func(int) time.Duration {
		return d
	})
}

// Linear returns a backoff that grows by base on every attempt.
// delay = base * attempt
func Linear(base time.Duration) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	})
}

// Exponential returns a backoff that doubles on every attempt.
// delay = base * 2^(attempt-1)
func Exponential(base time.Duration) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		if attempt <= 0 {
			return base
		}
		// saturate instead of overflowing int64
		shift := uint(attempt - 1)
		if shift > 62 || base > time.Duration(math.MaxInt64>>shift) {
			return time.Duration(math.MaxInt64)
		}
		return base << shift
	})
}

// WithCap caps the delay of b at max.
func WithCap(max time.Duration, b Backoff) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		return min(b.Delay(attempt), max)
	})
}

// WithMin raises the delay of b to at least min.
func WithMin(min time.Duration, b Backoff) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		return max(b.Delay(attempt), min)
	})
}

// WithJitter spreads the delay of b by ±factor, so 0.2 means ±20%.
func WithJitter(factor float64, b Backoff) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		d := b.Delay(attempt)
		if factor <= 0 || d <= 0 {
			return d
		}
		spread := float64(d) * factor
		jittered := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
		if jittered < 0 {
			return 0
		}
		return jittered
	})
}
