// Package retryable drives unreliable operations through bounded re-attempts with
// cooperative cancellation.
//
// retryable provides:
//
//   - Signal: a shareable, write-once cancellation token with listeners and timeouts
//   - Controller: runs a Factory through sequential attempts and settles one Future
//   - Error Classification: resumable errors are retried, terminal ones stop the run
//   - Aggregate Failures: every attempt error plus a single terminal reason
//   - Composable Backoff: Constant, Linear, Exponential, WithCap, WithMin, WithJitter
//   - Injectable Clock: control time in tests without real sleeps
//
// # Quick Start
//
// One-off retry of an operation without a result:
//
//	err := retryable.Do(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
//
// Retry an operation that produces a value:
//
//	user, err := retryable.DoValue(ctx, func(ctx context.Context) (*User, error) {
//	    return client.GetUser(ctx, id)
//	}, retryable.WithMaxAttempts(5), retryable.WithDelay(200*time.Millisecond))
//
// # Cancellation
//
// A Signal is created by the caller and handed to any number of controllers. Cancelling
// it ends every subscribed run with the given reason, even while an attempt is in
// flight. The attempt itself is not interrupted; its outcome is discarded.
//
//	sig := retryable.NewSignal()
//	sig.TimeoutAfter(5 * time.Second)
//
//	c, err := retryable.NewController(fetch, retryable.WithSignal(sig))
//	if err != nil {
//	    return err
//	}
//	future := c.Start(ctx)
//	// ...
//	sig.Cancel("shutting down")
//	_, err = future.Wait() // *RetryError with Reason "shutting down"
//
// The first reason passed to Cancel wins. TimeoutAfter is a deferred Cancel("timeout")
// and nothing more.
//
// # Terminal Errors
//
// Errors are resumable unless they say otherwise. Use Stop, or implement Resumable on
// a domain error, to end the run at once:
//
//	if resp.StatusCode >= 400 {
//	    return nil, retryable.Stop(fmt.Errorf("status %d", resp.StatusCode))
//	}
//
// A factory that panics does not crash the caller: the panic is recovered and recorded
// as a terminal error ("retryable: attempt panicked: ..."), so the run settles with
// ReasonErrors. Look for that message when a run fails after a single attempt.
//
// # Aggregate Failures
//
// A failed run always returns a *RetryError. Errors lists every failed attempt in order
// and Reason is one of ReasonErrors (a terminal error), ReasonMaxTries (attempts
// exhausted), ReasonTimeout (time budget or deadline) or the reason of the Signal that
// cancelled the run. errors.Is and errors.As see every attempt error.
//
//	var re *retryable.RetryError
//	if errors.As(err, &re) && re.Reason == retryable.ReasonMaxTries {
//	    log.Warn().Int("attempts", len(re.Errors)).Msg("gave up")
//	}
//
// # Policies
//
// Policies carry the wire-up settings (attempts, time budget, backoff, clock) so they
// can be injected, while call sites add conditions and hooks:
//
//	policy := retryable.New(
//	    retryable.WithMaxAttempts(5),
//	    retryable.WithBackoff(retryable.Exponential(100*time.Millisecond)),
//	)
//	err := policy.Do(ctx, fn, retryable.OnError(func(ctx context.Context, attempt int, err error) {
//	    logger.Warn().Err(err).Int("attempt", attempt).Msg("attempt failed")
//	}))
//
// # Testing
//
// Inject a Clock whose Sleep returns immediately and whose AfterFunc fires on demand.
// WithPendingOnExhaustion keeps the historical behavior of never settling once the
// attempts are used up; the run then ends only through its Signal or context.
package retryable
