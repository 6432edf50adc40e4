package core

import (
	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/util"
)

// KeySpace returns the number of consecutive indices assigned to each worker
// when numberKeys indices are split across numWorkers workers
func KeySpace(numberKeys uint64, numWorkers int) uint64 {
	return util.CeilDiv(numberKeys, uint64(numWorkers))
}

// Recipient returns the rank of the worker which owns key. Every worker computes
// the same assignment independently.
func Recipient(key uint64, numberKeys uint64, numWorkers int) (int, error) {
	if key >= numberKeys {
		return 0, errors.KeyOutOfRangeError{Key: key, NumberKeys: numberKeys}
	}
	return int(key / KeySpace(numberKeys, numWorkers)), nil
}

// IndexRange returns the half-open range of indices [begin, end) owned by rank.
// The range is empty for trailing workers when numberKeys is small.
func IndexRange(rank int, numberKeys uint64, numWorkers int) (uint64, uint64) {
	keyspace := KeySpace(numberKeys, numWorkers)
	begin := keyspace * uint64(rank)
	end := begin + keyspace
	if end > numberKeys {
		end = numberKeys
	}
	if begin > end {
		begin = end
	}
	return begin, end
}
