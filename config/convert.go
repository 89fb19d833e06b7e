package config

import (
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bjaus/retryable"
	"github.com/bjaus/retryable/httpretry"
	"github.com/bjaus/retryable/logger"
)

// BackoffStrategy builds the delay strategy described by c, or nil for none.
func (c RetryConfig) BackoffStrategy() retryable.Backoff {
	var b retryable.Backoff
	switch c.Backoff {
	case BackoffConstant:
		b = retryable.Constant(c.Delay)
	case BackoffLinear:
		b = retryable.Linear(c.Delay)
	case BackoffExponential:
		b = retryable.Exponential(c.Delay)
	default:
		return nil
	}
	if c.MaxDelay > 0 {
		b = retryable.WithCap(c.MaxDelay, b)
	}
	if c.Jitter > 0 {
		b = retryable.WithJitter(c.Jitter, b)
	}
	return b
}

// Options converts c into controller options.
func (c RetryConfig) Options() []retryable.Option {
	opts := []retryable.Option{
		retryable.WithMaxAttempts(c.MaxAttempts),
		retryable.WithBackoff(c.BackoffStrategy()),
	}
	if c.MaxDuration > 0 {
		opts = append(opts, retryable.WithMaxDuration(c.MaxDuration))
	}
	if c.PendingOnExhaustion {
		opts = append(opts, retryable.WithPendingOnExhaustion())
	}
	return opts
}

// Limiter returns the request rate limiter, or nil when rate limiting is off.
func (c HTTPConfig) Limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), max(c.RateBurst, 1))
}

// ClientOptions converts cfg into httpretry client options, using log for the
// client and its controllers.
func (c *Config) ClientOptions(log zerolog.Logger) []httpretry.ClientOption {
	opts := []httpretry.ClientOption{
		httpretry.WithTimeout(c.HTTP.Timeout),
		httpretry.WithRequestIDHeader(c.HTTP.RequestIDHeader),
		httpretry.WithRetryOnValidationFailure(c.HTTP.RetryOnValidationFailure),
		httpretry.WithLogger(log),
		httpretry.WithRetryOptions(c.Retry.Options()...),
	}
	if l := c.HTTP.Limiter(); l != nil {
		opts = append(opts, httpretry.WithRateLimiter(l))
	}
	return opts
}

// Logger builds the logger described by c.Log.
func (c *Config) Logger() zerolog.Logger {
	return logger.New(c.Log.Level, c.Log.Pretty)
}
