package data

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/docker/docker/pkg/locker"
	"github.com/go-sif/dataflow/internal/async"
	"github.com/go-sif/dataflow/logging"
)

// MultiplexerConfig configures a Multiplexer
type MultiplexerConfig struct {
	Rank            int            // rank of this worker within the job
	NumWorkers      int            // number of workers in the job
	Transport       Transport      // transport to peer workers. May be nil for single-worker jobs.
	Pool            *BlockPool     // storage for queued Blocks
	BlockSize       int            // target size of outgoing Blocks in bytes
	CallbackThreads int            // size of the pool which runs Channel close callbacks
	Logger          logging.Logger // defaults to a no-op logger
}

// Multiplexer owns every Channel of one worker, routing inbound Blocks from the
// Transport to the addressed Channel. Channel ids are allocated sequentially, so
// workers which construct the same operators in the same order agree on them.
type Multiplexer struct {
	rank         int
	numWorkers   int
	transport    Transport
	pool         *BlockPool
	blockSize    int
	tasks        *async.Pool
	logger       logging.Logger
	locks        *locker.Locker
	channelsLock sync.Mutex
	channels     map[uint64]*Channel
	released     map[uint64]bool
	nextID       uint64
	abortErr     error
}

// NewMultiplexer creates a Multiplexer
func NewMultiplexer(conf MultiplexerConfig) (*Multiplexer, error) {
	if conf.NumWorkers < 1 {
		return nil, fmt.Errorf("NumWorkers must be at least 1")
	}
	if conf.Rank < 0 || conf.Rank >= conf.NumWorkers {
		return nil, fmt.Errorf("Rank %d is outside of [0, %d)", conf.Rank, conf.NumWorkers)
	}
	if conf.Pool == nil {
		return nil, fmt.Errorf("A BlockPool is required")
	}
	if conf.Transport == nil && conf.NumWorkers > 1 {
		return nil, fmt.Errorf("A Transport is required for jobs with more than one worker")
	}
	if conf.BlockSize <= 0 {
		conf.BlockSize = DefaultBlockSize
	}
	if conf.CallbackThreads <= 0 {
		conf.CallbackThreads = 1
	}
	if conf.Logger == nil {
		conf.Logger = logging.NewNopLogger()
	}
	return &Multiplexer{
		rank:       conf.Rank,
		numWorkers: conf.NumWorkers,
		transport:  conf.Transport,
		pool:       conf.Pool,
		blockSize:  conf.BlockSize,
		tasks:      async.NewPool(conf.CallbackThreads),
		logger:     conf.Logger.With("rank", conf.Rank),
		locks:      locker.New(),
		channels:   make(map[uint64]*Channel),
		released:   make(map[uint64]bool),
	}, nil
}

// Rank returns the rank of this worker
func (m *Multiplexer) Rank() int {
	return m.rank
}

// NumWorkers returns the number of workers in the job
func (m *Multiplexer) NumWorkers() int {
	return m.numWorkers
}

// Pool returns the BlockPool backing this Multiplexer's Channels
func (m *Multiplexer) Pool() *BlockPool {
	return m.pool
}

// BlockSize returns the target size of Blocks in bytes
func (m *Multiplexer) BlockSize() int {
	return m.blockSize
}

// GetNewChannel allocates the next Channel id and returns its Channel
func (m *Multiplexer) GetNewChannel() *Channel {
	m.channelsLock.Lock()
	id := m.nextID
	m.nextID++
	m.channelsLock.Unlock()
	c, _ := m.GetOrCreateChannel(id)
	m.logger.Debug("allocated channel", "channel", id)
	return c
}

// GetOrCreateChannel returns the Channel with the given id, creating it if
// necessary. Blocks may arrive from peers before this worker allocates the
// Channel itself; they are queued in the meantime.
func (m *Multiplexer) GetOrCreateChannel(id uint64) (*Channel, error) {
	key := strconv.FormatUint(id, 10)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)
	m.channelsLock.Lock()
	c, ok := m.channels[id]
	released := m.released[id]
	m.channelsLock.Unlock()
	if released {
		return nil, fmt.Errorf("Channel %d has been released", id)
	}
	if ok {
		return c, nil
	}
	c = newChannel(id, m)
	m.channelsLock.Lock()
	m.channels[id] = c
	abortErr := m.abortErr
	m.channelsLock.Unlock()
	if abortErr != nil {
		c.abort(abortErr)
	}
	return c, nil
}

// Deliver implements Receiver
func (m *Multiplexer) Deliver(channelID uint64, sender int, b Block) error {
	c, err := m.GetOrCreateChannel(channelID)
	if err != nil {
		return err
	}
	return c.deliver(sender, b)
}

// CloseInbound implements Receiver
func (m *Multiplexer) CloseInbound(channelID uint64, sender int) error {
	c, err := m.GetOrCreateChannel(channelID)
	if err != nil {
		return err
	}
	m.logger.Debug("inbound stream closed", "channel", channelID, "sender", sender)
	return c.closeInbound(sender)
}

// AbortInbound implements Receiver
func (m *Multiplexer) AbortInbound(channelID uint64, sender int, err error) {
	c, cerr := m.GetOrCreateChannel(channelID)
	if cerr != nil {
		return
	}
	m.logger.Error("inbound stream failed", "channel", channelID, "sender", sender, "error", err)
	c.abortInbound(sender, err)
}

// Release frees the storage held by a Channel. The Channel id may not be reused.
func (m *Multiplexer) Release(id uint64) {
	key := strconv.FormatUint(id, 10)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)
	m.channelsLock.Lock()
	c, ok := m.channels[id]
	delete(m.channels, id)
	m.released[id] = true
	m.channelsLock.Unlock()
	if ok {
		c.release()
	}
}

// Abort fails every Channel of this worker, including those not yet allocated, so
// that readers blocked on them return err
func (m *Multiplexer) Abort(err error) {
	m.channelsLock.Lock()
	if m.abortErr == nil {
		m.abortErr = err
	}
	channels := make([]*Channel, 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}
	m.channelsLock.Unlock()
	m.logger.Warn("aborting channels", "error", err)
	for _, c := range channels {
		c.abort(err)
	}
}

func (m *Multiplexer) dispatch(cb func()) {
	if err := m.tasks.Enqueue(cb); err != nil {
		m.logger.Warn("dropping channel callback", "error", err)
	}
}

// WaitCallbacks blocks until all dispatched Channel callbacks have run, returning any panics they raised
func (m *Multiplexer) WaitCallbacks() error {
	return m.tasks.LoopUntilEmpty()
}

// Close waits for outstanding callbacks and releases every Channel
func (m *Multiplexer) Close() error {
	err := m.tasks.Close()
	m.channelsLock.Lock()
	ids := make([]uint64, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.channelsLock.Unlock()
	for _, id := range ids {
		m.Release(id)
	}
	return err
}
