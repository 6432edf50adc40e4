package data

import (
	"fmt"

	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/errors"
)

// BlockReader pulls Blocks from a BlockSource and exposes the records within them
// one at a time. HasNext may block if the source does. It is not safe for concurrent use.
type BlockReader struct {
	src       BlockSource
	cur       []byte
	remaining int
	exhausted bool
	err       error
}

// NewBlockReader creates a BlockReader over src
func NewBlockReader(src BlockSource) *BlockReader {
	return &BlockReader{src: src}
}

// HasNext returns true iff another record is available. It returns false once the
// source is exhausted or has failed; Err distinguishes the two.
func (r *BlockReader) HasNext() bool {
	for r.remaining == 0 {
		if r.exhausted {
			return false
		}
		b, ok, err := r.src.NextBlock()
		if err != nil {
			r.err = err
			r.exhausted = true
			return false
		}
		if !ok {
			r.exhausted = true
			return false
		}
		r.cur = b.Data
		r.remaining = b.NumItems
	}
	return true
}

// Next decodes the next record with decode, which returns the number of bytes it consumed
func (r *BlockReader) Next(decode func(buf []byte) (int, error)) error {
	if !r.HasNext() {
		if r.err != nil {
			return r.err
		}
		return errors.NoMoreItemsError{}
	}
	n, err := decode(r.cur)
	if err != nil {
		return err
	}
	if n <= 0 || n > len(r.cur) {
		return fmt.Errorf("Serializer consumed %d bytes of a %d byte buffer", n, len(r.cur))
	}
	r.cur = r.cur[n:]
	r.remaining--
	return nil
}

// Err returns the error which terminated this reader, if any
func (r *BlockReader) Err() error {
	return r.err
}

// Reader is a typed view of a BlockReader
type Reader[T any] struct {
	br         *BlockReader
	serializer dataflow.Serializer[T]
}

// NewReader binds a Serializer to a BlockReader
func NewReader[T any](br *BlockReader, serializer dataflow.Serializer[T]) *Reader[T] {
	return &Reader[T]{br: br, serializer: serializer}
}

// HasNext returns true iff another record is available
func (r *Reader[T]) HasNext() bool {
	return r.br.HasNext()
}

// Next returns the next record
func (r *Reader[T]) Next() (T, error) {
	var v T
	err := r.br.Next(func(buf []byte) (int, error) {
		res, n, err := r.serializer.Read(buf)
		v = res
		return n, err
	})
	return v, err
}

// Err returns the error which terminated this reader, if any
func (r *Reader[T]) Err() error {
	return r.br.Err()
}

// concatSource drains several BlockSources one after another
type concatSource struct {
	sources []BlockSource
	current int
}

func (s *concatSource) NextBlock() (Block, bool, error) {
	for s.current < len(s.sources) {
		b, ok, err := s.sources[s.current].NextBlock()
		if err != nil {
			return Block{}, false, err
		}
		if ok {
			return b, true, nil
		}
		s.current++
	}
	return Block{}, false, nil
}

// cachingSource copies every Block it yields into a File, so that the stream can be replayed
type cachingSource struct {
	src   BlockSource
	cache *File
}

func (s *cachingSource) NextBlock() (Block, bool, error) {
	b, ok, err := s.src.NextBlock()
	if err != nil || !ok {
		if cerr := s.cache.Close(); err == nil && cerr != nil {
			err = cerr
		}
		return b, ok, err
	}
	// the cache takes its own copy, since the pool may hold on to stored data
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	if err := s.cache.AppendBlock(Block{Data: data, NumItems: b.NumItems}); err != nil {
		return Block{}, false, err
	}
	return b, true, nil
}
