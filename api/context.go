package api

import (
	"context"
	"fmt"

	"github.com/go-sif/dataflow/internal/data"
	"github.com/go-sif/dataflow/logging"
	"github.com/hashicorp/go-multierror"
)

// DefaultMemoryBudget is the default number of bytes a worker may hold in memory,
// both for queued Blocks and for the sort buffers of a single operator
const DefaultMemoryBudget = 256 * 1024 * 1024

// ContextOptions configure the execution Context of a worker
type ContextOptions struct {
	MemoryBudget    int64          // bytes of records held in memory before spilling to disk
	BlockSize       int            // target size of Blocks in bytes
	TempDir         string         // location for spilled Blocks
	Compression     string         // codec for spilled Blocks: "lz4" (default), "zstd" or "none"
	CallbackThreads int            // threads which run Channel close callbacks
	Logger          logging.Logger // defaults to a no-op logger
}

func ensureDefaultContextOptionsValues(opts *ContextOptions) {
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = DefaultMemoryBudget
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = data.DefaultBlockSize
	}
	if len(opts.Compression) == 0 {
		opts.Compression = data.CompressionLZ4
	}
	if opts.CallbackThreads <= 0 {
		opts.CallbackThreads = 2
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
}

// Context is the execution environment of one worker within a job. Every worker
// must construct the same operators in the same order, so that their Channels match up.
type Context struct {
	ctx        context.Context
	rank       int
	numWorkers int
	opts       ContextOptions
	pool       *data.BlockPool
	mux        *data.Multiplexer
	logger     logging.Logger
}

// NewContext creates the Context for worker rank of numWorkers. transport carries
// Blocks to peers, and may be nil when numWorkers is 1. ctx bounds the lifetime of
// every outbound stream opened by this Context.
func NewContext(ctx context.Context, rank int, numWorkers int, transport data.Transport, opts *ContextOptions) (*Context, error) {
	var o ContextOptions
	if opts != nil {
		o = *opts
	}
	ensureDefaultContextOptionsValues(&o)
	pool, err := data.NewBlockPool(data.BlockPoolConfig{
		MemoryLimit: o.MemoryBudget,
		TempDir:     o.TempDir,
		Compression: o.Compression,
	})
	if err != nil {
		return nil, err
	}
	logger := o.Logger.With("rank", rank)
	mux, err := data.NewMultiplexer(data.MultiplexerConfig{
		Rank:            rank,
		NumWorkers:      numWorkers,
		Transport:       transport,
		Pool:            pool,
		BlockSize:       o.BlockSize,
		CallbackThreads: o.CallbackThreads,
		Logger:          o.Logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("Unable to create context for worker %d: %w", rank, err)
	}
	return &Context{
		ctx:        ctx,
		rank:       rank,
		numWorkers: numWorkers,
		opts:       o,
		pool:       pool,
		mux:        mux,
		logger:     logger,
	}, nil
}

// Rank returns the rank of this worker
func (c *Context) Rank() int {
	return c.rank
}

// NumWorkers returns the number of workers in the job
func (c *Context) NumWorkers() int {
	return c.numWorkers
}

// Logger returns the Logger of this worker
func (c *Context) Logger() logging.Logger {
	return c.logger
}

// MemoryBudget returns the number of bytes an operator may buffer in memory
func (c *Context) MemoryBudget() int64 {
	return c.opts.MemoryBudget
}

// Receiver returns the endpoint to which a Transport delivers inbound Blocks for this worker
func (c *Context) Receiver() data.Receiver {
	return c.mux
}

// Multiplexer returns the Multiplexer which owns this worker's Channels
func (c *Context) Multiplexer() *data.Multiplexer {
	return c.mux
}

// BlockPool returns the storage backing this worker's Files and Channels
func (c *Context) BlockPool() *data.BlockPool {
	return c.pool
}

// GetFile creates a new, empty File
func (c *Context) GetFile() *data.File {
	return data.NewFile(c.pool, c.opts.BlockSize)
}

// GetNewChannel allocates the next Channel of this job
func (c *Context) GetNewChannel() *data.Channel {
	return c.mux.GetNewChannel()
}

// Abort fails every Channel of this worker, so that operators blocked on
// records from peers return err
func (c *Context) Abort(err error) {
	c.mux.Abort(err)
}

// Close waits for outstanding Channel callbacks, then releases all storage
func (c *Context) Close() error {
	var errs *multierror.Error
	if err := c.mux.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := c.pool.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
