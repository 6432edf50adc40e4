package data

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/async"
	"github.com/go-sif/dataflow/internal/stats"
)

const (
	readNone = iota
	readCached
	readConsumed
)

// Channel is one worker's endpoint of a job-wide, many-to-many transfer of records.
// Each worker writes to every worker (including itself) through one BlockWriter per
// peer, and reads everything addressed to it through a single concatenated reader.
type Channel struct {
	id        uint64
	mux       *Multiplexer
	queues    []*BlockQueue // inbound, indexed by sender
	stats     *stats.ChannelStatistics
	closed    *async.Future[closeEvent]
	lock      sync.Mutex
	opened    bool
	writers   int // local writers closed
	inbound   int // inbound queues closed or aborted
	closeErr  error
	fired     bool
	callbacks []func()
	readState int
	caches    []*File
}

func newChannel(id uint64, mux *Multiplexer) *Channel {
	c := &Channel{
		id:     id,
		mux:    mux,
		stats:  stats.NewChannelStatistics(),
		closed: async.NewFuture[closeEvent](),
	}
	c.queues = make([]*BlockQueue, mux.NumWorkers())
	for i := range c.queues {
		c.queues[i] = NewBlockQueue(mux.pool, c.onInboundClosed)
	}
	return c
}

// ID returns the job-scoped identifier of this Channel
func (c *Channel) ID() uint64 {
	return c.id
}

// OpenWriters opens one BlockWriter per worker, indexed by rank. Writes to this
// worker's own rank are looped back locally. Every writer must be closed, or the
// readers of this Channel on the addressed workers never finish.
func (c *Channel) OpenWriters(ctx context.Context) ([]*BlockWriter, error) {
	c.lock.Lock()
	if c.opened {
		c.lock.Unlock()
		return nil, fmt.Errorf("Writers for channel %d have already been opened", c.id)
	}
	c.opened = true
	c.lock.Unlock()
	writers := make([]*BlockWriter, c.mux.NumWorkers())
	for peer := range writers {
		sink := &channelSink{channel: c, peer: peer}
		if peer != c.mux.Rank() {
			stream, err := c.mux.transport.OpenStream(ctx, peer, c.id)
			if err != nil {
				// close what we've opened so far, so that peers aren't left waiting
				for _, w := range writers[:peer] {
					w.Close()
				}
				return nil, fmt.Errorf("Unable to open stream to worker %d for channel %d: %w", peer, c.id, err)
			}
			sink.stream = stream
		}
		writers[peer] = NewBlockWriter(sink, c.mux.blockSize)
	}
	return writers, nil
}

// OpenConcatReader returns a reader which yields every record sent to this worker on
// this Channel, draining senders in rank order. A consuming reader may only be opened
// once; a non-consuming reader caches what it reads so that the Channel can be read again.
func (c *Channel) OpenConcatReader(consume bool) *BlockReader {
	c.lock.Lock()
	defer c.lock.Unlock()
	sources := make([]BlockSource, len(c.queues))
	switch c.readState {
	case readNone:
		if consume {
			for i, q := range c.queues {
				sources[i] = q
			}
			c.readState = readConsumed
		} else {
			c.caches = make([]*File, len(c.queues))
			for i, q := range c.queues {
				c.caches[i] = NewFile(c.mux.pool, c.mux.blockSize)
				sources[i] = &cachingSource{src: q, cache: c.caches[i]}
			}
			c.readState = readCached
		}
	case readCached:
		for i, f := range c.caches {
			sources[i] = &fileSource{file: f, consume: consume}
		}
		if consume {
			c.readState = readConsumed
		}
	default:
		return NewBlockReader(errorSource{err: errors.ConsumedError{}})
	}
	return NewBlockReader(&concatSource{sources: sources})
}

// closeEvent is the outcome of a Channel. err is the first inbound abort, if any.
type closeEvent struct {
	snapshot stats.ChannelSnapshot
	err      error
}

// OnClose registers a callback which fires exactly once, on the Multiplexer's callback
// pool, after every inbound stream and every local writer of this Channel has closed.
// It never fires if an inbound stream was aborted.
func (c *Channel) OnClose(cb func()) {
	c.lock.Lock()
	if !c.fired {
		c.callbacks = append(c.callbacks, cb)
		c.lock.Unlock()
		return
	}
	failed := c.closeErr != nil
	c.lock.Unlock()
	if !failed {
		c.mux.dispatch(cb)
	}
}

// WaitClosed blocks until this Channel has closed, returning its final statistics.
// If an inbound stream was aborted, WaitClosed returns the abort error instead.
func (c *Channel) WaitClosed(ctx context.Context) (stats.ChannelSnapshot, error) {
	ev, err := c.closed.WaitContext(ctx)
	if err != nil {
		return stats.ChannelSnapshot{}, err
	}
	return ev.snapshot, ev.err
}

// IsClosed returns true iff this Channel has closed, cleanly or not
func (c *Channel) IsClosed() bool {
	return c.closed.IsFulfilled()
}

// Stats returns a snapshot of the traffic through this Channel
func (c *Channel) Stats() stats.ChannelSnapshot {
	return c.stats.Snapshot()
}

func (c *Channel) deliver(sender int, b Block) error {
	if sender < 0 || sender >= len(c.queues) {
		return errors.UnknownPeerError{Rank: sender}
	}
	c.stats.RecordReceived(b.NumItems, b.Size())
	return c.queues[sender].AppendBlock(b)
}

func (c *Channel) closeInbound(sender int) error {
	if sender < 0 || sender >= len(c.queues) {
		return errors.UnknownPeerError{Rank: sender}
	}
	return c.queues[sender].Close()
}

func (c *Channel) abortInbound(sender int, err error) {
	if sender < 0 || sender >= len(c.queues) {
		return
	}
	c.queues[sender].Abort(fmt.Errorf("Stream from worker %d on channel %d failed: %w", sender, c.id, err))
}

func (c *Channel) abort(err error) {
	for _, q := range c.queues {
		q.Abort(err)
	}
}

func (c *Channel) onInboundClosed(err error) {
	c.lock.Lock()
	c.inbound++
	if err != nil && c.closeErr == nil {
		c.closeErr = err
	}
	c.lock.Unlock()
	c.checkClosed()
}

func (c *Channel) onWriterClosed() {
	c.lock.Lock()
	c.writers++
	c.lock.Unlock()
	c.checkClosed()
}

func (c *Channel) checkClosed() {
	c.lock.Lock()
	if c.fired || c.inbound < len(c.queues) || c.writers < len(c.queues) {
		c.lock.Unlock()
		return
	}
	c.fired = true
	callbacks := c.callbacks
	c.callbacks = nil
	closeErr := c.closeErr
	c.lock.Unlock()
	c.stats.Close()
	c.closed.Callback(closeEvent{snapshot: c.stats.Snapshot(), err: closeErr})
	if closeErr != nil {
		return
	}
	for _, cb := range callbacks {
		c.mux.dispatch(cb)
	}
}

func (c *Channel) release() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, q := range c.queues {
		q.Clear()
	}
	for _, f := range c.caches {
		f.Clear()
	}
	c.caches = nil
}

// channelSink routes a writer's Blocks either to a peer's stream or back into this worker's own queue
type channelSink struct {
	channel *Channel
	peer    int
	stream  BlockStream // nil for the loopback writer
	closed  bool
}

func (s *channelSink) AppendBlock(b Block) error {
	s.channel.stats.RecordSent(b.NumItems, b.Size())
	if s.stream == nil {
		return s.channel.deliver(s.peer, b)
	}
	return s.stream.Send(b)
}

func (s *channelSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.stream == nil {
		err = s.channel.closeInbound(s.peer)
	} else {
		err = s.stream.Close()
	}
	s.channel.onWriterClosed()
	return err
}

type errorSource struct{ err error }

func (s errorSource) NextBlock() (Block, bool, error) {
	return Block{}, false, s.err
}
