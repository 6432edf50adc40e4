package async

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-sif/dataflow/errors"
)

// Future is a single-slot, one-shot handoff of a value from one producer to one consumer.
// The zero value is not usable; create Futures with NewFuture.
type Future[T any] struct {
	lock      sync.Mutex
	fulfilled bool
	value     T
	ready     chan struct{}
	finished  atomic.Bool
}

// NewFuture creates an empty Future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{ready: make(chan struct{})}
}

// Callback supplies the value of this Future, releasing any waiter. Only the first
// call succeeds; subsequent calls return FutureAlreadyFulfilledError and leave the
// original value in place.
func (f *Future[T]) Callback(value T) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.fulfilled {
		return errors.FutureAlreadyFulfilledError{}
	}
	f.value = value
	f.fulfilled = true
	close(f.ready)
	return nil
}

// Wait blocks until Callback has been invoked, then returns the supplied value
func (f *Future[T]) Wait() T {
	<-f.ready
	f.finished.Store(true)
	return f.value
}

// WaitContext is Wait with cancellation
func (f *Future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		f.finished.Store(true)
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel which is closed once the value has been supplied
func (f *Future[T]) Done() <-chan struct{} {
	return f.ready
}

// IsFulfilled reports whether Callback has completed
func (f *Future[T]) IsFulfilled() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

// IsFinished reports whether the supplied value has been handed to a waiter. It
// is false before Callback, and becomes true only after a Wait has returned.
func (f *Future[T]) IsFinished() bool {
	return f.finished.Load()
}
