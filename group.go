package dataflow

// KeyExtractor maps a record to its integer key. For index operations, keys
// must lie within the dense range [0, numberKeys).
type KeyExtractor[T any] func(v T) uint64

// A GroupIterator yields the records sharing a single key, in the order they
// appear within the merged, sorted stream
type GroupIterator[T any] interface {
	HasNext() bool    // HasNext returns true iff another record with the current key is available
	Next() (T, error) // Next returns the next record with the current key
	Key() uint64      // Key returns the key shared by all records of this group
}

// GroupFunction reduces all records sharing a key into a single result
type GroupFunction[In any, Out any] func(it GroupIterator[In], key uint64) (Out, error)

// ReduceFunction combines two values sharing a key into one
type ReduceFunction[V any] func(a V, b V) V

// HashFunction hashes a key for bucketing within hash tables
type HashFunction[K comparable] func(k K) uint64

// LessFunction reports whether a sorts strictly before b
type LessFunction[T any] func(a T, b T) bool
