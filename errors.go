package retryable

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal reasons carried by RetryError. A cancelled Signal contributes its own
// reason string instead.
const (
	ReasonErrors    = "errors"
	ReasonMaxTries  = "max tries"
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
)

// ErrNilFactory is returned by NewController when no factory is given.
var ErrNilFactory = errors.New("retryable: missing factory")

// RetryError is the aggregate failure of a controller run. Errors holds every failed
// attempt in order; Reason says why the run stopped.
type RetryError struct {
	Errors []error
	Reason string
	// Cause is the error that ended the run: the non-resumable attempt error for
	// ReasonErrors, or the context error when the caller's context ended.
	Cause error
}

func (e *RetryError) Error() string {
	var b strings.Builder
	b.WriteString("retryable: ")
	b.WriteString(e.Reason)
	fmt.Fprintf(&b, " after %d failed attempt(s)", len(e.Errors))
	switch {
	case e.Cause != nil:
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	case len(e.Errors) > 0:
		b.WriteString(": ")
		b.WriteString(e.Errors[len(e.Errors)-1].Error())
	}
	return b.String()
}

// Unwrap exposes every attempt error to errors.Is and errors.As. A Cause that did not
// come from an attempt, such as a context error, is included as well.
func (e *RetryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors)+1)
	errs = append(errs, e.Errors...)
	if e.Cause != nil && e.Reason != ReasonErrors {
		errs = append(errs, e.Cause)
	}
	return errs
}

// ReasonOf returns the terminal reason when err contains a RetryError.
func ReasonOf(err error) (string, bool) {
	var re *RetryError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// CancelledError is the context cause used when a Signal cancels a context.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string {
	return "retryable: signal cancelled: " + e.Reason
}
