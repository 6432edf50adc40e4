// Package accumulators provides Accumulators, an alternative to hand-written
// GroupFunctions which siphon the records of each group into a custom data structure.
package accumulators

import (
	"github.com/go-sif/dataflow"
)

// An Accumulator collects the records of a single group
type Accumulator[T any] interface {
	Accumulate(v T) error          // Accumulate adds a record to this Accumulator
	Merge(o Accumulator[T]) error // Merge merges another Accumulator into this one
}

// Drain feeds every remaining record of a group to acc
func Drain[T any](it dataflow.GroupIterator[T], acc Accumulator[T]) error {
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return err
		}
		if err := acc.Accumulate(v); err != nil {
			return err
		}
	}
	return nil
}

// Group returns a GroupFunction which drains each group into a fresh Accumulator
// from create, and outputs that Accumulator
func Group[T any, A Accumulator[T]](create func() A) dataflow.GroupFunction[T, A] {
	return func(it dataflow.GroupIterator[T], key uint64) (A, error) {
		acc := create()
		err := Drain[T](it, acc)
		return acc, err
	}
}
