package api

import (
	"fmt"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/core"
)

// A Source produces the records of a job which originate on this worker
type Source[T any] interface {
	RegisterChild(fn func(v T) error) // RegisterChild adds a consumer for every record this Source pushes
	PushData(consume bool) error      // PushData hands every record to the registered children
}

// SourceNode is a Source backed by a slice of records held by this worker
type SourceNode[T any] struct {
	values   []T
	children []func(v T) error
	consumed bool
}

// Distribute splits values evenly across the workers of a job, returning a Source
// for this worker's share. Every worker must supply the same values.
func Distribute[T any](dctx *Context, values []T) *SourceNode[T] {
	n := uint64(len(values))
	begin, end := core.IndexRange(dctx.Rank(), n, dctx.NumWorkers())
	return &SourceNode[T]{values: values[begin:end]}
}

// Generate creates a Source of n records, where record i is fn(i). Each worker
// generates the indices in its share of [0, n).
func Generate[T any](dctx *Context, n uint64, fn func(i uint64) T) *SourceNode[T] {
	begin, end := core.IndexRange(dctx.Rank(), n, dctx.NumWorkers())
	values := make([]T, 0, end-begin)
	for i := begin; i < end; i++ {
		values = append(values, fn(i))
	}
	return &SourceNode[T]{values: values}
}

// Local creates a Source of records which already reside on this worker
func Local[T any](values []T) *SourceNode[T] {
	return &SourceNode[T]{values: values}
}

// RegisterChild implements Source
func (s *SourceNode[T]) RegisterChild(fn func(v T) error) {
	s.children = append(s.children, fn)
}

// NumItems returns the number of records this worker holds
func (s *SourceNode[T]) NumItems() int {
	return len(s.values)
}

// PushData implements Source
func (s *SourceNode[T]) PushData(consume bool) error {
	if s.consumed {
		return errors.ConsumedError{}
	}
	for i, v := range s.values {
		for _, child := range s.children {
			if err := child(v); err != nil {
				return fmt.Errorf("Unable to push record %d: %w", i, err)
			}
		}
	}
	if consume {
		s.values = nil
		s.consumed = true
	}
	return nil
}
