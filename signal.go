package retryable

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Listener is notified with the cancellation reason every time Cancel is called.
type Listener func(reason string)

// Signal is a write-once cancellation token shared between the code that decides to
// abort and any number of controllers reacting to it.
//
// The first reason passed to Cancel wins. Later calls leave the state alone but still
// run every listener again, with the first reason.
type Signal struct {
	clock Clock

	mu        sync.Mutex
	reason    string
	listeners []Listener
	done      chan struct{}
}

// NewSignal returns a signal that is not cancelled.
func NewSignal() *Signal {
	return NewSignalWithClock(defaultClock)
}

// NewSignalWithClock returns a signal whose TimeoutAfter timers come from clock.
func NewSignalWithClock(clock Clock) *Signal {
	if clock == nil {
		clock = defaultClock
	}
	return &Signal{
		clock: clock,
		done:  make(chan struct{}),
	}
}

// SignalFromContext returns a signal cancelled when ctx ends: ReasonTimeout for a
// passed deadline, ReasonCancelled otherwise.
func SignalFromContext(ctx context.Context) *Signal {
	s := NewSignal()
	context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.Cancel(ReasonTimeout)
			return
		}
		s.Cancel(ReasonCancelled)
	})
	return s
}

// IsCancelled reports whether Cancel has been called.
func (s *Signal) IsCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason != ""
}

// Reason returns the cancellation reason, or "" while the signal is live.
func (s *Signal) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done returns a channel closed on the first cancellation.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Cancel records reason (ReasonCancelled when empty) unless the signal is already
// cancelled, then calls every listener in registration order with the recorded
// reason. Listener panics propagate to the caller.
func (s *Signal) Cancel(reason string) {
	if reason == "" {
		reason = ReasonCancelled
	}

	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
		close(s.done)
	}
	reason = s.reason
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(reason)
	}
}

// TimeoutAfter schedules Cancel(ReasonTimeout) after d. If the signal was cancelled
// earlier the timer still fires and only re-notifies listeners.
func (s *Signal) TimeoutAfter(d time.Duration) {
	s.clock.AfterFunc(d, func() {
		s.Cancel(ReasonTimeout)
	})
}

// OnCancelled registers fn and returns the number of registered listeners.
// Registering on an already cancelled signal does not call fn.
func (s *Signal) OnCancelled(fn Listener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	return len(s.listeners)
}

// Context returns a child of parent that is cancelled, with a *CancelledError cause,
// when the signal fires. The returned CancelFunc does not unregister the listener, so
// every call keeps its context reachable for the lifetime of s. Derive one context per
// operation group rather than per request on a long-lived Signal.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	s.OnCancelled(func(reason string) {
		cancel(&CancelledError{Reason: reason})
	})
	if r := s.Reason(); r != "" {
		cancel(&CancelledError{Reason: r})
	}
	return ctx, func() { cancel(context.Canceled) }
}
