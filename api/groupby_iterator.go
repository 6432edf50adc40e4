package api

import (
	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/data"
)

// groupByIterator walks a key-sorted stream one group at a time, holding a single
// record of lookahead. It implements dataflow.GroupIterator for the current group.
type groupByIterator[In any] struct {
	reader  *data.Reader[In]
	keyFn   dataflow.KeyExtractor[In]
	next    In
	nextKey uint64
	hasNext bool
	key     uint64
}

func newGroupByIterator[In any](reader *data.Reader[In], keyFn dataflow.KeyExtractor[In]) (*groupByIterator[In], error) {
	it := &groupByIterator[In]{reader: reader, keyFn: keyFn}
	return it, it.advance()
}

func (it *groupByIterator[In]) advance() error {
	if !it.reader.HasNext() {
		var zero In
		it.next = zero
		it.hasNext = false
		return it.reader.Err()
	}
	v, err := it.reader.Next()
	if err != nil {
		it.hasNext = false
		return err
	}
	it.next = v
	it.nextKey = it.keyFn(v)
	it.hasNext = true
	return nil
}

// hasNextForReal returns true iff any records remain, in any group
func (it *groupByIterator[In]) hasNextForReal() bool {
	return it.hasNext
}

// peekKey returns the key of the next record in the stream
func (it *groupByIterator[In]) peekKey() uint64 {
	return it.nextKey
}

// startGroup positions the iterator on the group of the next record
func (it *groupByIterator[In]) startGroup() {
	it.key = it.nextKey
}

// skipGroup discards whatever the grouping function left unread of the current group
func (it *groupByIterator[In]) skipGroup() error {
	for it.HasNext() {
		if _, err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (it *groupByIterator[In]) HasNext() bool {
	return it.hasNext && it.nextKey == it.key
}

func (it *groupByIterator[In]) Next() (In, error) {
	if !it.HasNext() {
		var zero In
		return zero, errors.NoMoreItemsError{}
	}
	v := it.next
	return v, it.advance()
}

func (it *groupByIterator[In]) Key() uint64 {
	return it.key
}
