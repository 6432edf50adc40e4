package core

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/go-sif/dataflow"
)

const (
	defaultInitialBuckets = 64
	defaultMaxFillFactor  = 2.0
)

// HashUint64 is the default HashFunction for integer keys
func HashUint64(k uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k)
	return xxhash.Sum64(buf[:])
}

// HashString is the default HashFunction for string keys
func HashString(k string) uint64 {
	return xxhash.Sum64String(k)
}

// ReducePreTableOptions tune a ReducePreTable
type ReducePreTableOptions struct {
	InitialBuckets       int     // buckets per partition before any resize
	MaxFillFactor        float64 // average entries per bucket which triggers a doubling of a partition's buckets
	MaxItemsPerPartition int     // a partition which reaches this many entries is flushed. 0 disables.
}

type preTableEntry[K comparable, V any] struct {
	key   K
	hash  uint64
	value V
}

type preTablePartition[K comparable, V any] struct {
	buckets [][]preTableEntry[K, V]
	size    int
}

// ReducePreTable combines values with equal keys before they are shuffled.
// Keys are hashed into numPartitions partitions, one per downstream emitter; each
// partition is a chained hash table whose bucket count doubles when its fill factor
// is exceeded. Flushing emits one aggregated value per distinct key.
type ReducePreTable[K comparable, V any] struct {
	keyFn      func(v V) K
	reduceFn   dataflow.ReduceFunction[V]
	hashFn     dataflow.HashFunction[K]
	emitters   []func(v V) error
	opts       ReducePreTableOptions
	partitions []*preTablePartition[K, V]
	size       int
	numResizes int
}

// NewReducePreTable creates a ReducePreTable. There must be either one emitter per
// partition, or a single emitter shared by all partitions.
func NewReducePreTable[K comparable, V any](
	numPartitions int,
	keyFn func(v V) K,
	reduceFn dataflow.ReduceFunction[V],
	hashFn dataflow.HashFunction[K],
	emitters []func(v V) error,
	opts *ReducePreTableOptions,
) (*ReducePreTable[K, V], error) {
	if numPartitions < 1 {
		return nil, fmt.Errorf("ReducePreTable requires at least one partition")
	}
	if len(emitters) != 1 && len(emitters) != numPartitions {
		return nil, fmt.Errorf("ReducePreTable with %d partitions requires 1 or %d emitters, not %d", numPartitions, numPartitions, len(emitters))
	}
	if hashFn == nil {
		return nil, fmt.Errorf("ReducePreTable requires a HashFunction")
	}
	var o ReducePreTableOptions
	if opts != nil {
		o = *opts
	}
	if o.InitialBuckets <= 0 {
		o.InitialBuckets = defaultInitialBuckets
	}
	if o.MaxFillFactor <= 0 {
		o.MaxFillFactor = defaultMaxFillFactor
	}
	t := &ReducePreTable[K, V]{
		keyFn:      keyFn,
		reduceFn:   reduceFn,
		hashFn:     hashFn,
		emitters:   emitters,
		opts:       o,
		partitions: make([]*preTablePartition[K, V], numPartitions),
	}
	for i := range t.partitions {
		t.partitions[i] = &preTablePartition[K, V]{buckets: make([][]preTableEntry[K, V], o.InitialBuckets)}
	}
	return t, nil
}

// Insert adds a value, combining it with any value already held for the same key
func (t *ReducePreTable[K, V]) Insert(v V) error {
	k := t.keyFn(v)
	h := t.hashFn(k)
	pi := int(h % uint64(len(t.partitions)))
	p := t.partitions[pi]
	// the low bits chose the partition, so buckets are chosen from the rest
	bh := h / uint64(len(t.partitions))
	bi := bh % uint64(len(p.buckets))
	bucket := p.buckets[bi]
	for i := range bucket {
		if bucket[i].key == k {
			bucket[i].value = t.reduceFn(bucket[i].value, v)
			return nil
		}
	}
	p.buckets[bi] = append(bucket, preTableEntry[K, V]{key: k, hash: bh, value: v})
	p.size++
	t.size++
	if t.opts.MaxItemsPerPartition > 0 && p.size >= t.opts.MaxItemsPerPartition {
		return t.FlushPartition(pi)
	}
	if float64(p.size) > t.opts.MaxFillFactor*float64(len(p.buckets)) {
		t.resize(p)
	}
	return nil
}

func (t *ReducePreTable[K, V]) resize(p *preTablePartition[K, V]) {
	buckets := make([][]preTableEntry[K, V], 2*len(p.buckets))
	for _, bucket := range p.buckets {
		for _, e := range bucket {
			bi := e.hash % uint64(len(buckets))
			buckets[bi] = append(buckets[bi], e)
		}
	}
	p.buckets = buckets
	t.numResizes++
}

// FlushPartition emits and removes every entry of one partition
func (t *ReducePreTable[K, V]) FlushPartition(i int) error {
	if i < 0 || i >= len(t.partitions) {
		return fmt.Errorf("Partition %d is outside of [0, %d)", i, len(t.partitions))
	}
	emit := t.emitters[0]
	if len(t.emitters) > 1 {
		emit = t.emitters[i]
	}
	p := t.partitions[i]
	for bi, bucket := range p.buckets {
		for _, e := range bucket {
			if err := emit(e.value); err != nil {
				return err
			}
		}
		p.buckets[bi] = nil
	}
	t.size -= p.size
	p.size = 0
	return nil
}

// Flush emits and removes every entry of every partition
func (t *ReducePreTable[K, V]) Flush() error {
	for i := range t.partitions {
		if err := t.FlushPartition(i); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of distinct keys currently held
func (t *ReducePreTable[K, V]) Size() int {
	return t.size
}

// PartitionSize returns the number of distinct keys currently held in one partition
func (t *ReducePreTable[K, V]) PartitionSize(i int) int {
	return t.partitions[i].size
}

// NumPartitions returns the number of partitions
func (t *ReducePreTable[K, V]) NumPartitions() int {
	return len(t.partitions)
}

// NumBuckets returns the current number of buckets in one partition
func (t *ReducePreTable[K, V]) NumBuckets(i int) int {
	return len(t.partitions[i].buckets)
}

// NumResizes returns how many times a partition's buckets have been doubled
func (t *ReducePreTable[K, V]) NumResizes() int {
	return t.numResizes
}
