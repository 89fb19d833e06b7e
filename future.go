package retryable

import (
	"context"
	"sync"
)

// DefaultTitle names operations started without WithTitle.
const DefaultTitle = "operation"

// Future is the single result of a controller run. It settles exactly once.
type Future[T any] struct {
	title string
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any](title string) *Future[T] {
	return &Future[T]{
		title: title,
		done:  make(chan struct{}),
	}
}

// Title returns the operation title given with WithTitle.
func (f *Future[T]) Title() string {
	return f.title
}

// Done returns a channel closed once the result has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the result is available.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the result settles.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// WaitContext blocks until the result settles or ctx ends, whichever comes first.
func (f *Future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}
