package datasource

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/serializers"
)

// Record is a single parsed row, keyed by its dense integer index.
// Value holds the row's payload as text.
type Record = serializers.KeyValue[uint64, string]

// A Parser turns raw rows read from r into Records
type Parser interface {
	Parse(r io.Reader, emit func(Record) error) error
}

// RecordSerializer serializes Records for transmission between workers
func RecordSerializer() dataflow.Serializer[Record] {
	return serializers.Pair(serializers.Uint64(), serializers.String())
}

// RecordKey extracts the index of a Record
func RecordKey(r Record) uint64 {
	return r.Key
}

// ParseIndex parses the textual form of a Record index, which must be a non-negative integer
func ParseIndex(s string) (uint64, error) {
	idx, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("index %q is not a non-negative integer: %w", s, err)
	}
	return idx, nil
}
