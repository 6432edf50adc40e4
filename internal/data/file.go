package data

import (
	"sync"

	"github.com/go-sif/dataflow/errors"
)

// File is an append-only sequence of Blocks which is sealed once its Writer is
// closed. A File has exactly one Writer at a time; it may be read any number of
// times by non-consuming Readers, or once by a consuming Reader.
type File struct {
	pool      *BlockPool
	blockSize int
	lock      sync.Mutex
	blocks    []*blockRef
	numItems  int
	sizeBytes int64
	sealed    bool
	consumed  bool
}

// NewFile creates an empty File whose Blocks are stored in pool
func NewFile(pool *BlockPool, blockSize int) *File {
	return &File{pool: pool, blockSize: blockSize}
}

// AppendBlock appends a Block to the end of this File
func (f *File) AppendBlock(b Block) error {
	if b.NumItems == 0 {
		return nil
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.sealed {
		return errors.ClosedError{Name: "File"}
	}
	ref, err := f.pool.store(b)
	if err != nil {
		return err
	}
	f.blocks = append(f.blocks, ref)
	f.numItems += b.NumItems
	f.sizeBytes += int64(b.Size())
	return nil
}

// Close seals this File, after which no further Blocks may be appended
func (f *File) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.sealed = true
	return nil
}

// GetWriter returns a BlockWriter which appends to this File and seals it on Close
func (f *File) GetWriter() *BlockWriter {
	return NewBlockWriter(f, f.blockSize)
}

// GetReader returns a BlockReader over the contents of this File. A consuming
// reader frees each Block once it has been read.
func (f *File) GetReader(consume bool) *BlockReader {
	return NewBlockReader(&fileSource{file: f, consume: consume})
}

// NumItems returns the number of records in this File
func (f *File) NumItems() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.numItems
}

// NumBlocks returns the number of Blocks in this File
func (f *File) NumBlocks() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.blocks)
}

// SizeBytes returns the number of bytes of record data in this File
func (f *File) SizeBytes() int64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.sizeBytes
}

// IsSealed returns true iff this File's Writer has been closed
func (f *File) IsSealed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.sealed
}

// Clear frees all Blocks within this File
func (f *File) Clear() {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, ref := range f.blocks {
		// consumed blocks were already freed
		if ref != nil {
			f.pool.free(ref)
		}
	}
	f.blocks = nil
}

func (f *File) block(i int, consume bool) (Block, bool, error) {
	f.lock.Lock()
	if f.consumed {
		f.lock.Unlock()
		return Block{}, false, errors.ConsumedError{}
	}
	if i >= len(f.blocks) {
		if consume {
			f.consumed = true
			f.blocks = nil
		}
		f.lock.Unlock()
		return Block{}, false, nil
	}
	ref := f.blocks[i]
	if consume {
		f.blocks[i] = nil
	}
	f.lock.Unlock()
	b, err := f.pool.load(ref)
	if err != nil {
		return Block{}, false, err
	}
	if consume {
		f.pool.free(ref)
	}
	return b, true, nil
}

type fileSource struct {
	file    *File
	next    int
	consume bool
}

func (s *fileSource) NextBlock() (Block, bool, error) {
	b, ok, err := s.file.block(s.next, s.consume)
	if ok {
		s.next++
	}
	return b, ok, err
}
