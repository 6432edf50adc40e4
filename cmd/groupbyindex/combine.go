package main

import (
	"context"

	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/api"
	"github.com/go-sif/dataflow/cluster"
	"github.com/go-sif/dataflow/datasource"
	"github.com/go-sif/dataflow/internal/core"
	"github.com/go-sif/dataflow/serializers"
)

var (
	indexSerializer = serializers.Uint64()
	countSerializer = serializers.Int()
	sumSerializer   = serializers.Float64()
)

// summarySerializer encodes a Summary as four fixed-width fields
type summarySerializer struct{}

func (summarySerializer) Append(buf []byte, s Summary) ([]byte, error) {
	buf, err := indexSerializer.Append(buf, s.Index)
	if err != nil {
		return nil, err
	}
	if buf, err = countSerializer.Append(buf, s.Count); err != nil {
		return nil, err
	}
	if buf, err = sumSerializer.Append(buf, s.Sum); err != nil {
		return nil, err
	}
	return countSerializer.Append(buf, s.NonNumeric)
}

func (summarySerializer) Read(buf []byte) (Summary, int, error) {
	var s Summary
	var n, off int
	var err error
	if s.Index, n, err = indexSerializer.Read(buf); err != nil {
		return s, 0, err
	}
	off += n
	if s.Count, n, err = countSerializer.Read(buf[off:]); err != nil {
		return s, 0, err
	}
	off += n
	if s.Sum, n, err = sumSerializer.Read(buf[off:]); err != nil {
		return s, 0, err
	}
	off += n
	if s.NonNumeric, n, err = countSerializer.Read(buf[off:]); err != nil {
		return s, 0, err
	}
	return s, off + n, nil
}

func (summarySerializer) FixedSize() int {
	return indexSerializer.FixedSize() + 2*countSerializer.FixedSize() + sumSerializer.FixedSize()
}

func summaryIndex(s Summary) uint64 {
	return s.Index
}

func (s Summary) merge(o Summary) Summary {
	s.Count += o.Count
	s.Sum += o.Sum
	s.NonNumeric += o.NonNumeric
	return s
}

// recordSummary is the Summary of a single record
func recordSummary(r datasource.Record) Summary {
	s := Summary{Index: r.Key, Count: 1}
	if f, ok := numericValue(r); ok {
		s.Sum = f
	} else {
		s.NonNumeric = 1
	}
	return s
}

func mergeSummaries(it dataflow.GroupIterator[Summary], key uint64) (Summary, error) {
	res := Summary{Index: key}
	for it.HasNext() {
		s, err := it.Next()
		if err != nil {
			return res, err
		}
		res = res.merge(s)
	}
	return res, nil
}

// combineJob pre-aggregates this worker's records per index in a ReducePreTable,
// so that at most one partial Summary per index and flush leaves each worker.
// maxTableItems bounds the distinct indices held before a partition is flushed.
func combineJob(read reader, numberKeys uint64, maxTableItems int) cluster.Job[[]Summary] {
	return func(ctx context.Context, dctx *api.Context) ([]Summary, error) {
		var partials []Summary
		collect := func(s Summary) error {
			partials = append(partials, s)
			return nil
		}
		table, err := core.NewReducePreTable(dctx.NumWorkers(), summaryIndex, Summary.merge, core.HashUint64,
			[]func(Summary) error{collect}, &core.ReducePreTableOptions{MaxItemsPerPartition: maxTableItems})
		if err != nil {
			return nil, err
		}
		var numRecords int
		err = read(ctx, dctx.Rank(), dctx.NumWorkers(), func(r datasource.Record) error {
			numRecords++
			return table.Insert(recordSummary(r))
		})
		if err != nil {
			return nil, err
		}
		if err := table.Flush(); err != nil {
			return nil, err
		}
		dctx.Logger().Debug("combined input", "records", numRecords, "partials", len(partials), "resizes", table.NumResizes())
		res, err := api.GroupByIndex(ctx, dctx, api.Local(partials), summarySerializer{}, summaryIndex, mergeSummaries, numberKeys, Summary{})
		if err != nil {
			return nil, err
		}
		stampIndices(dctx, res, numberKeys)
		return res, nil
	}
}
