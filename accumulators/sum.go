package accumulators

import (
	"fmt"
)

// Adder returns a factory for Sum Accumulators over the values extracted by valueFn.
// Records for which valueFn reports false are skipped, and counted.
func Adder[T any](valueFn func(v T) (float64, bool)) func() *Sum[T] {
	return func() *Sum[T] {
		return &Sum[T]{valueFn: valueFn}
	}
}

// Sum sums the values of records
type Sum[T any] struct {
	valueFn func(v T) (float64, bool)
	sum     float64
	skipped uint64
}

// GetSum returns the sum from this Accumulator
func (a *Sum[T]) GetSum() float64 {
	return a.sum
}

// GetSkipped returns the number of records which had no value
func (a *Sum[T]) GetSkipped() uint64 {
	return a.skipped
}

// Accumulate adds a record to this Accumulator
func (a *Sum[T]) Accumulate(v T) error {
	f, ok := a.valueFn(v)
	if !ok {
		a.skipped++
		return nil
	}
	a.sum += f
	return nil
}

// Merge merges another Accumulator into this one
func (a *Sum[T]) Merge(o Accumulator[T]) error {
	sa, ok := o.(*Sum[T])
	if !ok {
		return fmt.Errorf("Incoming accumulator is not a Sum Accumulator")
	}
	a.sum += sa.sum
	a.skipped += sa.skipped
	return nil
}
