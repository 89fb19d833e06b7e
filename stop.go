package retryable

import "errors"

// Resumable is implemented by errors that know whether retrying them makes sense.
// An error returning false ends the retry loop immediately.
type Resumable interface {
	Resumable() bool
}

// Stop wraps an error to signal that it should not be retried.
// The controller records the unwrapped error and terminates with ReasonErrors.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// stopError wraps an error that should not be retried.
type stopError struct {
	err error
}

func (e *stopError) Error() string {
	return e.err.Error()
}

func (e *stopError) Unwrap() error {
	return e.err
}

func (e *stopError) Resumable() bool {
	return false
}

// IsResumable reports whether err may be retried. Errors without an explicit
// classification are resumable.
func IsResumable(err error) bool {
	if err == nil {
		return false
	}
	var r Resumable
	if errors.As(err, &r) {
		return r.Resumable()
	}
	return true
}

// unwrapStop strips the Stop marker so callers see their own error.
func unwrapStop(err error) error {
	if s, ok := err.(*stopError); ok {
		return s.err
	}
	return err
}
