package main

import (
	"context"
	"strconv"

	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/accumulators"
	"github.com/go-sif/dataflow/api"
	"github.com/go-sif/dataflow/cluster"
	"github.com/go-sif/dataflow/datasource"
	"github.com/go-sif/dataflow/internal/core"
)

// Summary is the aggregate of every record sharing an index
type Summary struct {
	Index      uint64  `json:"index"`
	Count      int     `json:"count"`
	Sum        float64 `json:"sum"`
	NonNumeric int     `json:"non_numeric,omitempty"`
}

// reader feeds the records held by one worker
type reader func(ctx context.Context, rank int, numWorkers int, emit func(datasource.Record) error) error

func numericValue(r datasource.Record) (float64, bool) {
	f, err := strconv.ParseFloat(r.Value, 64)
	return f, err == nil
}

var newSummaryAccumulator = accumulators.Compose(
	func() accumulators.Accumulator[datasource.Record] { return accumulators.Counter[datasource.Record]() },
	func() accumulators.Accumulator[datasource.Record] { return accumulators.Adder(numericValue)() },
)

func summarize(it dataflow.GroupIterator[datasource.Record], key uint64) (Summary, error) {
	acc := newSummaryAccumulator()
	if err := accumulators.Drain[datasource.Record](it, acc); err != nil {
		return Summary{Index: key}, err
	}
	res := acc.GetResults()
	count := res[0].(*accumulators.Count[datasource.Record])
	sum := res[1].(*accumulators.Sum[datasource.Record])
	return Summary{
		Index:      key,
		Count:      int(count.GetCount()),
		Sum:        sum.GetSum(),
		NonNumeric: int(sum.GetSkipped()),
	}, nil
}

// groupJob reads this worker's share of the input and shuffles every record,
// summarizing each index's group with accumulators.
func groupJob(read reader, numberKeys uint64) cluster.Job[[]Summary] {
	return func(ctx context.Context, dctx *api.Context) ([]Summary, error) {
		var records []datasource.Record
		err := read(ctx, dctx.Rank(), dctx.NumWorkers(), func(r datasource.Record) error {
			records = append(records, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
		dctx.Logger().Debug("read input", "records", len(records))
		res, err := api.GroupByIndex(ctx, dctx, api.Local(records), datasource.RecordSerializer(), datasource.RecordKey, summarize, numberKeys, Summary{})
		if err != nil {
			return nil, err
		}
		stampIndices(dctx, res, numberKeys)
		return res, nil
	}
}

// stampIndices sets the index of every result of this worker. Neutral summaries
// carry no index of their own.
func stampIndices(dctx *api.Context, res []Summary, numberKeys uint64) {
	begin, _ := core.IndexRange(dctx.Rank(), numberKeys, dctx.NumWorkers())
	for i := range res {
		res[i].Index = begin + uint64(i)
	}
}
