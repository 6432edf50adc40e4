package accumulators

import (
	"fmt"
)

// Counter returns a new Count Accumulator
func Counter[T any]() *Count[T] {
	return new(Count[T])
}

// Count counts records
type Count[T any] struct {
	count uint64
}

// GetCount returns the record count from this Accumulator
func (a *Count[T]) GetCount() uint64 {
	return a.count
}

// Accumulate adds a record to this Accumulator
func (a *Count[T]) Accumulate(v T) error {
	a.count++
	return nil
}

// Merge merges another Accumulator into this one
func (a *Count[T]) Merge(o Accumulator[T]) error {
	ca, ok := o.(*Count[T])
	if !ok {
		return fmt.Errorf("Incoming accumulator is not a Count Accumulator")
	}
	a.count += ca.count
	return nil
}
