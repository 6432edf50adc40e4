package core

import (
	"container/heap"

	"github.com/go-sif/dataflow"
)

// Sequence is a sorted stream of values, such as a reader over a run
type Sequence[T any] interface {
	HasNext() bool
	Next() (T, error)
}

// SliceSequence adapts a slice to a Sequence
type SliceSequence[T any] struct {
	values []T
	next   int
}

// NewSliceSequence creates a Sequence over values
func NewSliceSequence[T any](values []T) *SliceSequence[T] {
	return &SliceSequence[T]{values: values}
}

// HasNext returns true iff values remain
func (s *SliceSequence[T]) HasNext() bool {
	return s.next < len(s.values)
}

// Next returns the next value
func (s *SliceSequence[T]) Next() (T, error) {
	v := s.values[s.next]
	s.next++
	return v, nil
}

type mergeHead[T any] struct {
	value T
	seq   int
}

type mergeHeap[T any] struct {
	heads []mergeHead[T]
	less  dataflow.LessFunction[T]
}

func (h *mergeHeap[T]) Len() int { return len(h.heads) }
func (h *mergeHeap[T]) Less(i, j int) bool {
	if h.less(h.heads[i].value, h.heads[j].value) {
		return true
	}
	if h.less(h.heads[j].value, h.heads[i].value) {
		return false
	}
	// equal keys drain in sequence order
	return h.heads[i].seq < h.heads[j].seq
}
func (h *mergeHeap[T]) Swap(i, j int) { h.heads[i], h.heads[j] = h.heads[j], h.heads[i] }
func (h *mergeHeap[T]) Push(x any)   { h.heads = append(h.heads, x.(mergeHead[T])) }
func (h *mergeHeap[T]) Pop() any {
	old := h.heads
	n := len(old)
	x := old[n-1]
	h.heads = old[:n-1]
	return x
}

// MultiwayMerge merges sorted sequences into out in the order defined by less,
// in O(N log k) for N values across k sequences. Every value of every sequence is
// emitted exactly once. A single sequence is copied through without comparisons.
func MultiwayMerge[T any](seqs []Sequence[T], less dataflow.LessFunction[T], out func(v T) error) error {
	switch len(seqs) {
	case 0:
		return nil
	case 1:
		return copySequence(seqs[0], out)
	}
	h := &mergeHeap[T]{heads: make([]mergeHead[T], 0, len(seqs)), less: less}
	for i, s := range seqs {
		if !s.HasNext() {
			continue
		}
		v, err := s.Next()
		if err != nil {
			return err
		}
		h.heads = append(h.heads, mergeHead[T]{value: v, seq: i})
	}
	heap.Init(h)
	for h.Len() > 0 {
		top := h.heads[0]
		if err := out(top.value); err != nil {
			return err
		}
		s := seqs[top.seq]
		if s.HasNext() {
			v, err := s.Next()
			if err != nil {
				return err
			}
			h.heads[0].value = v
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return nil
}

func copySequence[T any](s Sequence[T], out func(v T) error) error {
	for s.HasNext() {
		v, err := s.Next()
		if err != nil {
			return err
		}
		if err := out(v); err != nil {
			return err
		}
	}
	return nil
}
