package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	uuid "github.com/gofrs/uuid"
)

// BlockPoolConfig configures a BlockPool
type BlockPoolConfig struct {
	MemoryLimit int64       // bytes of Block data retained in memory before new Blocks are spilled to disk
	TempDir     string      // directory for the spill file
	Compression Compression // codec for spilled Blocks
}

// blockRef is a handle to a Block stored within a BlockPool, either in memory or on disk
type blockRef struct {
	numItems int
	rawSize  int
	data     []byte // nil iff the Block was spilled
	offset   int64
	length   int
}

func (r *blockRef) onDisk() bool {
	return r.data == nil && r.rawSize > 0
}

// BlockPool owns the memory budget of a worker. Blocks stored while the budget is
// exhausted are compressed and appended to a single worker-scoped spill file.
// Space within the spill file is reclaimed when the pool is closed.
type BlockPool struct {
	conf          BlockPoolConfig
	compressor    blockCompressor
	lock          sync.Mutex
	inMemoryBytes int64
	spillPath     string
	spillFile     *os.File
	spillOffset   int64
	numSpilled    int64
	spilledBytes  int64
	closed        bool
}

// NewBlockPool creates a BlockPool
func NewBlockPool(conf BlockPoolConfig) (*BlockPool, error) {
	if len(conf.TempDir) == 0 {
		conf.TempDir = os.TempDir()
	}
	if conf.MemoryLimit < 0 {
		conf.MemoryLimit = 0
	}
	compressor, err := newBlockCompressor(conf.Compression)
	if err != nil {
		return nil, err
	}
	return &BlockPool{conf: conf, compressor: compressor}, nil
}

// store takes ownership of a Block, retaining it in memory if the budget allows
func (p *BlockPool) store(b Block) (*blockRef, error) {
	ref := &blockRef{numItems: b.NumItems, rawSize: len(b.Data)}
	if len(b.Data) == 0 {
		return ref, nil
	}
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil, fmt.Errorf("BlockPool is closed")
	}
	if p.inMemoryBytes+int64(len(b.Data)) <= p.conf.MemoryLimit {
		p.inMemoryBytes += int64(len(b.Data))
		p.lock.Unlock()
		ref.data = b.Data
		return ref, nil
	}
	p.lock.Unlock()
	// compress outside of the lock
	compressed, err := p.compressor.Compress(b.Data)
	if err != nil {
		return nil, fmt.Errorf("Unable to compress block for spilling: %w", err)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.ensureSpillFile(); err != nil {
		return nil, err
	}
	if _, err := p.spillFile.WriteAt(compressed, p.spillOffset); err != nil {
		return nil, fmt.Errorf("Unable to spill block to %s: %w", p.spillPath, err)
	}
	ref.offset = p.spillOffset
	ref.length = len(compressed)
	p.spillOffset += int64(len(compressed))
	p.numSpilled++
	p.spilledBytes += int64(len(b.Data))
	return ref, nil
}

// load retrieves the Block referenced by ref, reading it back from disk if necessary
func (p *BlockPool) load(ref *blockRef) (Block, error) {
	if !ref.onDisk() {
		return Block{Data: ref.data, NumItems: ref.numItems}, nil
	}
	p.lock.Lock()
	f := p.spillFile
	p.lock.Unlock()
	if f == nil {
		return Block{}, fmt.Errorf("BlockPool spill file is not available")
	}
	compressed := make([]byte, ref.length)
	if _, err := f.ReadAt(compressed, ref.offset); err != nil {
		return Block{}, fmt.Errorf("Unable to load spilled block from %s: %w", p.spillPath, err)
	}
	raw, err := p.compressor.Decompress(compressed, ref.rawSize)
	if err != nil {
		return Block{}, err
	}
	return Block{Data: raw, NumItems: ref.numItems}, nil
}

// free releases the memory held by ref
func (p *BlockPool) free(ref *blockRef) {
	if ref == nil || ref.data == nil {
		return
	}
	p.lock.Lock()
	p.inMemoryBytes -= int64(len(ref.data))
	p.lock.Unlock()
	ref.data = nil
	ref.rawSize = 0
}

func (p *BlockPool) ensureSpillFile() error {
	if p.spillFile != nil {
		return nil
	}
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("Unable to generate spill file name: %w", err)
	}
	p.spillPath = filepath.Join(p.conf.TempDir, fmt.Sprintf("dataflow-spill-%s", id.String()))
	f, err := os.OpenFile(p.spillPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("Unable to create spill file: %w", err)
	}
	p.spillFile = f
	return nil
}

// InMemoryBytes returns the number of bytes of Block data currently held in memory
func (p *BlockPool) InMemoryBytes() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.inMemoryBytes
}

// NumSpilledBlocks returns the number of Blocks which have been written to disk
func (p *BlockPool) NumSpilledBlocks() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.numSpilled
}

// SpilledBytes returns the uncompressed size of all Blocks which have been written to disk
func (p *BlockPool) SpilledBytes() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.spilledBytes
}

// SpillPath returns the location of the spill file, or an empty string if nothing has been spilled
func (p *BlockPool) SpillPath() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.spillPath
}

// Close removes the spill file. Blocks stored in this pool must not be accessed afterwards.
func (p *BlockPool) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.compressor.Destroy()
	if p.spillFile == nil {
		return nil
	}
	if err := p.spillFile.Close(); err != nil {
		return fmt.Errorf("Unable to close spill file %s: %w", p.spillPath, err)
	}
	p.spillFile = nil
	if err := os.Remove(p.spillPath); err != nil {
		return fmt.Errorf("Unable to remove spill file %s: %w", p.spillPath, err)
	}
	return nil
}
