package accumulators

import (
	"fmt"
)

// Compose returns a factory for Composed Accumulators, each holding one
// Accumulator from each of faccs
func Compose[T any](faccs ...func() Accumulator[T]) func() *Composed[T] {
	return func() *Composed[T] {
		accs := make([]Accumulator[T], len(faccs))
		for i, f := range faccs {
			accs[i] = f()
		}
		return &Composed[T]{accs: accs}
	}
}

// Composed composes other Accumulators
type Composed[T any] struct {
	accs []Accumulator[T]
}

// GetResults returns the contained Accumulators, so that their results may be accessed
func (c *Composed[T]) GetResults() []Accumulator[T] {
	return c.accs
}

// Accumulate adds a record to all contained Accumulators
func (c *Composed[T]) Accumulate(v T) error {
	for _, a := range c.accs {
		err := a.Accumulate(v)
		if err != nil {
			return err
		}
	}
	return nil
}

// Merge merges another Composed Accumulator into this one, merging all contained Accumulators
func (c *Composed[T]) Merge(o Accumulator[T]) error {
	compa, ok := o.(*Composed[T])
	if !ok {
		return fmt.Errorf("Incoming accumulator is not a Composed Accumulator")
	}
	if len(compa.accs) != len(c.accs) {
		return fmt.Errorf("Incoming accumulator composes %d accumulators, expected %d", len(compa.accs), len(c.accs))
	}
	for i, a := range c.accs {
		err := a.Merge(compa.accs[i])
		if err != nil {
			return err
		}
	}
	return nil
}
