package api

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/internal/core"
	"github.com/go-sif/dataflow/internal/data"
	"github.com/go-sif/dataflow/internal/stats"
	"github.com/go-sif/dataflow/internal/util"
	"github.com/go-sif/dataflow/logging"
)

// estimatedRecordSize sizes sort buffers when a Serializer's records vary in length
const estimatedRecordSize = 64

// GroupByIndexOptions tune a GroupByIndexNode
type GroupByIndexOptions struct {
	// Hash maps keys onto the order in which records are sorted and merged. It
	// must preserve the order of keys. Defaults to the identity.
	Hash dataflow.HashFunction[uint64]
	// SortBufferBytes bounds the records buffered before a sorted run is spilled.
	// Defaults to the Context's MemoryBudget.
	SortBufferBytes int64
}

// GroupByIndexNode groups records by a dense integer index in [0, numberKeys).
// Records are shuffled so that each worker receives a contiguous range of indices,
// sorted by index through external sorting, and then handed to a GroupFunction
// once per index. Indices with no records yield a neutral element instead, so
// that every index produces exactly one result on exactly one worker.
type GroupByIndexNode[In any, Out any] struct {
	dctx            *Context
	serializer      dataflow.Serializer[In]
	keyFn           dataflow.KeyExtractor[In]
	groupFn         dataflow.GroupFunction[In, Out]
	numberKeys      uint64
	neutral         Out
	hash            dataflow.HashFunction[uint64]
	fixedVectorSize int
	channel         *data.Channel
	emitters        []*data.Writer[In]
	files           []*data.File
	sorted          *data.File
	callbacks       []func(v Out) error
	state           NodeState
	stats           *stats.NodeStatistics
	logger          logging.Logger
}

// NewGroupByIndexNode creates a GroupByIndexNode and opens its Channel
func NewGroupByIndexNode[In any, Out any](
	dctx *Context,
	serializer dataflow.Serializer[In],
	keyFn dataflow.KeyExtractor[In],
	groupFn dataflow.GroupFunction[In, Out],
	numberKeys uint64,
	neutral Out,
	opts *GroupByIndexOptions,
) (*GroupByIndexNode[In, Out], error) {
	var o GroupByIndexOptions
	if opts != nil {
		o = *opts
	}
	if o.Hash == nil {
		o.Hash = func(k uint64) uint64 { return k }
	}
	if o.SortBufferBytes <= 0 {
		o.SortBufferBytes = dctx.MemoryBudget()
	}
	channel := dctx.GetNewChannel()
	bws, err := channel.OpenWriters(dctx.ctx)
	if err != nil {
		return nil, err
	}
	emitters := make([]*data.Writer[In], len(bws))
	for i, bw := range bws {
		emitters[i] = data.NewWriter(bw, serializer)
	}
	n := &GroupByIndexNode[In, Out]{
		dctx:            dctx,
		serializer:      serializer,
		keyFn:           keyFn,
		groupFn:         util.SafeGroupFunction(groupFn),
		numberKeys:      numberKeys,
		neutral:         neutral,
		hash:            o.Hash,
		fixedVectorSize: fixedVectorSize(o.SortBufferBytes, serializer.FixedSize()),
		channel:         channel,
		emitters:        emitters,
		sorted:          dctx.GetFile(),
		state:           StateCreated,
		stats:           &stats.NodeStatistics{},
		logger:          dctx.Logger().With("node", "GroupByIndex", "channel", channel.ID()),
	}
	n.stats.Start()
	channel.OnClose(func() {
		s := channel.Stats()
		n.logger.Info("channel closed",
			"itemsSent", s.ItemsSent,
			"bytesSent", s.BytesSent,
			"itemsReceived", s.ItemsReceived,
			"bytesReceived", s.BytesReceived,
			"runtime", s.Runtime,
		)
	})
	return n, nil
}

// fixedVectorSize is the number of records buffered in memory before a run is spilled
func fixedVectorSize(budget int64, recordSize int) int {
	if recordSize <= 0 {
		recordSize = estimatedRecordSize
	}
	size := budget / int64(recordSize)
	if size < 1 {
		return 1
	}
	return int(size)
}

// RegisterWith makes this node a child of parent, so that parent pushes its records into PreOp
func (n *GroupByIndexNode[In, Out]) RegisterWith(parent Source[In]) {
	parent.RegisterChild(n.PreOp)
}

// AddCallback adds a consumer for the results of PushData
func (n *GroupByIndexNode[In, Out]) AddCallback(fn func(v Out) error) {
	n.callbacks = append(n.callbacks, fn)
}

// State returns the lifecycle stage of this node
func (n *GroupByIndexNode[In, Out]) State() NodeState {
	return n.state
}

// Stats returns the statistics of this node
func (n *GroupByIndexNode[In, Out]) Stats() *stats.NodeStatistics {
	return n.stats
}

// ChannelID returns the id of the Channel this node shuffles through
func (n *GroupByIndexNode[In, Out]) ChannelID() uint64 {
	return n.channel.ID()
}

// PreOp sends a record to the worker which owns its index. A key outside of
// [0, numberKeys) is a programming error, and panics.
func (n *GroupByIndexNode[In, Out]) PreOp(v In) error {
	if n.state != StatePreOp {
		if err := transition(&n.state, StatePreOp, "PreOp", StateCreated); err != nil {
			return err
		}
	}
	k := n.keyFn(v)
	recipient, err := core.Recipient(k, n.numberKeys, len(n.emitters))
	if err != nil {
		log.Panicf("GroupByIndex received an invalid record: %v", err)
	}
	n.stats.RecordPartitioned()
	return n.emitters[recipient].Put(v)
}

// Execute closes this worker's outbound streams, then receives every record
// addressed to it, sorting them into a single File. If Execute fails, the node
// moves to StateFailed and PushData is refused.
func (n *GroupByIndexNode[In, Out]) Execute(ctx context.Context) error {
	if err := transition(&n.state, StateMainOp, "Execute", StateCreated, StatePreOp); err != nil {
		return err
	}
	if err := n.mainOp(ctx); err != nil {
		n.state = StateFailed
		return err
	}
	return nil
}

func (n *GroupByIndexNode[In, Out]) less(a, b In) bool {
	return n.hash(n.keyFn(a)) < n.hash(n.keyFn(b))
}

// flushVectorToFile sorts a buffer of records and writes it to a new run
func (n *GroupByIndexNode[In, Out]) flushVectorToFile(buf []In) error {
	sort.Slice(buf, func(i, j int) bool { return n.less(buf[i], buf[j]) })
	f := n.dctx.GetFile()
	w := data.NewWriter(f.GetWriter(), n.serializer)
	for _, v := range buf {
		if err := w.Put(v); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	n.files = append(n.files, f)
	return nil
}

func (n *GroupByIndexNode[In, Out]) mainOp(ctx context.Context) error {
	n.stats.StartMainOp()
	for i, e := range n.emitters {
		if err := e.Close(); err != nil {
			return fmt.Errorf("Unable to close emitter to worker %d: %w", i, err)
		}
	}

	const consume = true
	reader := data.NewReader(n.channel.OpenConcatReader(consume), n.serializer)
	incoming := make([]In, 0, min(n.fixedVectorSize, 1<<16))
	var totalSize int64
	for reader.HasNext() {
		if len(incoming) == n.fixedVectorSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			totalSize += int64(len(incoming))
			if err := n.flushVectorToFile(incoming); err != nil {
				return err
			}
			clear(incoming)
			incoming = incoming[:0]
		}
		v, err := reader.Next()
		if err != nil {
			return err
		}
		incoming = append(incoming, v)
	}
	if err := reader.Err(); err != nil {
		return err
	}
	totalSize += int64(len(incoming))
	if len(incoming) > 0 {
		if err := n.flushVectorToFile(incoming); err != nil {
			return err
		}
	}
	incoming = nil
	n.stats.EndMainOp(totalSize, int64(len(n.files)))
	n.logger.Debug("received records", "items", totalSize, "runs", len(n.files))

	if err := ctx.Err(); err != nil {
		return err
	}
	n.stats.StartMerge()
	defer n.stats.EndMerge()
	w := data.NewWriter(n.sorted.GetWriter(), n.serializer)
	seqs := make([]core.Sequence[In], len(n.files))
	readers := make([]*data.Reader[In], len(n.files))
	for i, f := range n.files {
		readers[i] = data.NewReader(f.GetReader(consume), n.serializer)
		seqs[i] = readers[i]
	}
	err := core.MultiwayMerge(seqs, n.less, w.Put)
	for _, r := range readers {
		if err == nil {
			err = r.Err()
		}
	}
	if err != nil {
		w.Close()
		return fmt.Errorf("Unable to merge %d runs: %w", len(n.files), err)
	}
	n.files = nil
	return w.Close()
}

// PushData walks this worker's index range in order, emitting the result of the
// GroupFunction for every index which received records, and the neutral element
// for every index which did not. A consuming push may happen only once.
func (n *GroupByIndexNode[In, Out]) PushData(consume bool) error {
	if err := transition(&n.state, StatePushData, "PushData", StateMainOp, StatePushData); err != nil {
		return err
	}
	n.stats.StartPushData()
	var groups, neutrals int64
	defer func() { n.stats.EndPushData(groups, neutrals) }()

	reader := data.NewReader(n.sorted.GetReader(consume), n.serializer)
	it, err := newGroupByIterator(reader, n.keyFn)
	if err != nil {
		return err
	}
	currIndex, end := core.IndexRange(n.dctx.Rank(), n.numberKeys, n.dctx.NumWorkers())
	for it.hasNextForReal() {
		key := it.peekKey()
		if key < currIndex || key >= end {
			return fmt.Errorf("Record with key %d is out of order at index %d of [%d, %d)", key, currIndex, currIndex, end)
		}
		if key != currIndex {
			if err := n.emit(n.neutral); err != nil {
				return err
			}
			neutrals++
		} else {
			it.startGroup()
			res, err := n.groupFn(it, key)
			if err != nil {
				return err
			}
			if err := it.skipGroup(); err != nil {
				return err
			}
			if err := n.emit(res); err != nil {
				return err
			}
			groups++
		}
		currIndex++
	}
	// indices past the last record still belong to this worker
	for ; currIndex < end; currIndex++ {
		if err := n.emit(n.neutral); err != nil {
			return err
		}
		neutrals++
	}
	return nil
}

func (n *GroupByIndexNode[In, Out]) emit(v Out) error {
	for _, cb := range n.callbacks {
		if err := cb(v); err != nil {
			return err
		}
	}
	return nil
}

// Dispose releases the Channel and Files held by this node
func (n *GroupByIndexNode[In, Out]) Dispose() error {
	if n.state == StateDisposed {
		return nil
	}
	n.state = StateDisposed
	for _, e := range n.emitters {
		e.Close()
	}
	for _, f := range n.files {
		f.Clear()
	}
	n.files = nil
	n.sorted.Clear()
	n.dctx.Multiplexer().Release(n.channel.ID())
	n.stats.Finish()
	n.logger.Debug("disposed",
		"partitioned", n.stats.GetNumItemsPartitioned(),
		"received", n.stats.GetNumItemsReceived(),
		"runs", n.stats.GetNumRuns(),
		"groups", n.stats.GetNumGroupsEmitted(),
		"neutral", n.stats.GetNumNeutralEmitted(),
	)
	return nil
}

// GroupByIndex runs a complete GroupByIndex over source on this worker, returning
// the results for this worker's index range in index order
func GroupByIndex[In any, Out any](
	ctx context.Context,
	dctx *Context,
	source *SourceNode[In],
	serializer dataflow.Serializer[In],
	keyFn dataflow.KeyExtractor[In],
	groupFn dataflow.GroupFunction[In, Out],
	numberKeys uint64,
	neutral Out,
) (results []Out, err error) {
	node, err := NewGroupByIndexNode(dctx, serializer, keyFn, groupFn, numberKeys, neutral, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := node.Dispose(); err == nil {
			err = derr
		}
	}()
	node.RegisterWith(source)
	if err := source.PushData(true); err != nil {
		return nil, err
	}
	if err := node.Execute(ctx); err != nil {
		return nil, err
	}
	node.AddCallback(func(v Out) error {
		results = append(results, v)
		return nil
	})
	if err := node.PushData(true); err != nil {
		return nil, err
	}
	return results, nil
}
