package errors

import (
	"fmt"
)

// KeyOutOfRangeError occurs when a key extractor produces a key outside of a declared dense key space
type KeyOutOfRangeError struct {
	Key        uint64
	NumberKeys uint64
}

// Error returns a textual representation of this KeyOutOfRangeError
func (e KeyOutOfRangeError) Error() string {
	return fmt.Sprintf("Key %d is outside of key space [0, %d)", e.Key, e.NumberKeys)
}

// FutureAlreadyFulfilledError occurs when a value is supplied to a Future which already holds one
type FutureAlreadyFulfilledError struct{}

// Error returns a textual representation of this FutureAlreadyFulfilledError
func (e FutureAlreadyFulfilledError) Error() string {
	return "Future has already been fulfilled"
}

// InvalidStateError occurs when an operation is attempted on a node in a state which does not permit it
type InvalidStateError struct {
	Operation string
	State     string
}

// Error returns a textual representation of this InvalidStateError
func (e InvalidStateError) Error() string {
	return fmt.Sprintf("Cannot %s while node is in state %s", e.Operation, e.State)
}

// ClosedError occurs when a write is attempted to a closed Writer, Channel or File
type ClosedError struct{ Name string }

// Error returns a textual representation of this ClosedError
func (e ClosedError) Error() string {
	return fmt.Sprintf("%s is closed", e.Name)
}

// PoolClosedError occurs when a task is enqueued on a ThreadPool which has been closed
type PoolClosedError struct{}

// Error returns a textual representation of this PoolClosedError
func (e PoolClosedError) Error() string {
	return "Thread pool is closed"
}

// NoMoreItemsError occurs when Next() is called on an exhausted Reader or iterator
type NoMoreItemsError struct{}

// Error returns a textual representation of this NoMoreItemsError
func (e NoMoreItemsError) Error() string {
	return "No more items"
}

// ConsumedError occurs when a File is read after a consuming Reader has freed its contents
type ConsumedError struct{}

// Error returns a textual representation of this ConsumedError
func (e ConsumedError) Error() string {
	return "File has already been consumed"
}

// UnknownPeerError occurs when a transport is asked to reach a worker rank it does not know about
type UnknownPeerError struct{ Rank int }

// Error returns a textual representation of this UnknownPeerError
func (e UnknownPeerError) Error() string {
	return fmt.Sprintf("Worker %d is not a known peer", e.Rank)
}
