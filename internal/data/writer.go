package data

import (
	"github.com/go-sif/dataflow"
	"github.com/go-sif/dataflow/errors"
)

// DefaultBlockSize is the target number of bytes per Block
const DefaultBlockSize = 64 * 1024

// BlockWriter serializes records into Blocks of roughly blockSize bytes and hands
// each full Block to a BlockSink. It is not safe for concurrent use.
type BlockWriter struct {
	sink      BlockSink
	blockSize int
	buf       []byte
	numItems  int
	written   int
	closed    bool
}

// NewBlockWriter creates a BlockWriter which emits Blocks into sink
func NewBlockWriter(sink BlockSink, blockSize int) *BlockWriter {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &BlockWriter{sink: sink, blockSize: blockSize}
}

// Append adds a single record, encoded by encode onto the end of the current Block's buffer
func (w *BlockWriter) Append(encode func(buf []byte) ([]byte, error)) error {
	if w.closed {
		return errors.ClosedError{Name: "Writer"}
	}
	if w.buf == nil {
		w.buf = make([]byte, 0, w.blockSize)
	}
	buf, err := encode(w.buf)
	if err != nil {
		return err
	}
	w.buf = buf
	w.numItems++
	w.written++
	if len(w.buf) >= w.blockSize {
		return w.Flush()
	}
	return nil
}

// Flush hands the current partial Block to the sink
func (w *BlockWriter) Flush() error {
	if w.numItems == 0 {
		return nil
	}
	b := Block{Data: w.buf, NumItems: w.numItems}
	w.buf = nil
	w.numItems = 0
	return w.sink.AppendBlock(b)
}

// NumWritten returns the number of records appended through this writer
func (w *BlockWriter) NumWritten() int {
	return w.written
}

// IsClosed returns true iff Close has been called
func (w *BlockWriter) IsClosed() bool {
	return w.closed
}

// Close flushes any buffered records and closes the sink. Subsequent calls are no-ops.
func (w *BlockWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.Flush(); err != nil {
		w.sink.Close()
		return err
	}
	return w.sink.Close()
}

// Writer is a typed view of a BlockWriter
type Writer[T any] struct {
	bw         *BlockWriter
	serializer dataflow.Serializer[T]
}

// NewWriter binds a Serializer to a BlockWriter
func NewWriter[T any](bw *BlockWriter, serializer dataflow.Serializer[T]) *Writer[T] {
	return &Writer[T]{bw: bw, serializer: serializer}
}

// Put serializes and appends a record
func (w *Writer[T]) Put(v T) error {
	return w.bw.Append(func(buf []byte) ([]byte, error) {
		return w.serializer.Append(buf, v)
	})
}

// Close closes the underlying BlockWriter
func (w *Writer[T]) Close() error {
	return w.bw.Close()
}

// BlockWriter returns the underlying BlockWriter
func (w *Writer[T]) BlockWriter() *BlockWriter {
	return w.bw
}
