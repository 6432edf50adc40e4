package data

import (
	"sync"

	"github.com/go-sif/dataflow/errors"
)

// BlockQueue is a thread-safe FIFO of Blocks with a single producer and a single
// consumer. Readers block until a Block arrives or the queue is closed. Queued
// Blocks are stored in a BlockPool, and so spill to disk under memory pressure
// instead of blocking the producer.
type BlockQueue struct {
	pool      *BlockPool
	lock      sync.Mutex
	available *sync.Cond
	blocks    []*blockRef
	closed    bool
	err       error
	numItems  int
	numBlocks int
	sizeBytes int64
	onClose   func(err error)
}

// NewBlockQueue creates an open, empty BlockQueue. onClose, if not nil, is called
// exactly once when the queue is closed, with nil, or aborted, with the abort error.
func NewBlockQueue(pool *BlockPool, onClose func(err error)) *BlockQueue {
	q := &BlockQueue{pool: pool, onClose: onClose}
	q.available = sync.NewCond(&q.lock)
	return q
}

// AppendBlock enqueues a Block
func (q *BlockQueue) AppendBlock(b Block) error {
	if b.NumItems == 0 {
		return nil
	}
	ref, err := q.pool.store(b)
	if err != nil {
		return err
	}
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed {
		q.pool.free(ref)
		return errors.ClosedError{Name: "BlockQueue"}
	}
	q.blocks = append(q.blocks, ref)
	q.numItems += b.NumItems
	q.numBlocks++
	q.sizeBytes += int64(b.Size())
	q.available.Broadcast()
	return nil
}

// Close marks the end of the queue. Readers drain any remaining Blocks, then stop.
func (q *BlockQueue) Close() error {
	q.finish(nil)
	return nil
}

// Abort closes the queue with an error, which is reported to readers once the
// remaining Blocks are drained
func (q *BlockQueue) Abort(err error) {
	q.finish(err)
}

func (q *BlockQueue) finish(err error) {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return
	}
	q.closed = true
	q.err = err
	q.available.Broadcast()
	onClose := q.onClose
	q.lock.Unlock()
	if onClose != nil {
		onClose(err)
	}
}

// IsClosed returns true iff the producer has closed this queue
func (q *BlockQueue) IsClosed() bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.closed
}

// NumItems returns the number of records ever appended to this queue
func (q *BlockQueue) NumItems() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.numItems
}

// NumBlocks returns the number of Blocks ever appended to this queue
func (q *BlockQueue) NumBlocks() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.numBlocks
}

// SizeBytes returns the number of bytes ever appended to this queue
func (q *BlockQueue) SizeBytes() int64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.sizeBytes
}

// NextBlock removes and returns the Block at the head of the queue, blocking
// until one is available or the queue is closed
func (q *BlockQueue) NextBlock() (Block, bool, error) {
	q.lock.Lock()
	for len(q.blocks) == 0 && !q.closed {
		q.available.Wait()
	}
	if len(q.blocks) == 0 {
		err := q.err
		q.lock.Unlock()
		return Block{}, false, err
	}
	ref := q.blocks[0]
	q.blocks[0] = nil
	q.blocks = q.blocks[1:]
	q.lock.Unlock()
	b, err := q.pool.load(ref)
	if err != nil {
		return Block{}, false, err
	}
	q.pool.free(ref)
	return b, true, nil
}

// Clear frees all queued Blocks
func (q *BlockQueue) Clear() {
	q.lock.Lock()
	defer q.lock.Unlock()
	for _, ref := range q.blocks {
		q.pool.free(ref)
	}
	q.blocks = nil
}
