package data

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

// Compression names the codec used for Blocks which are spilled to disk
type Compression = string

const (
	// CompressionLZ4 compresses spilled Blocks with lz4 (the default)
	CompressionLZ4 Compression = "lz4"
	// CompressionZstd compresses spilled Blocks with zstd at its fastest level
	CompressionZstd Compression = "zstd"
	// CompressionNone writes spilled Blocks verbatim
	CompressionNone Compression = "none"
)

// blockCompressor compresses and decompresses spilled Block data. Implementations are safe for concurrent use.
type blockCompressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, rawSize int) ([]byte, error)
	Destroy()
}

func newBlockCompressor(c Compression) (blockCompressor, error) {
	switch c {
	case "", CompressionLZ4:
		return newLZ4Compressor(), nil
	case CompressionZstd:
		return newZstdCompressor()
	case CompressionNone:
		return noopCompressor{}, nil
	default:
		return nil, fmt.Errorf("Unknown compression %q", c)
	}
}

type lz4Compressor struct {
	lock         sync.Mutex
	compressor   *lz4.Writer
	decompressor *lz4.Reader
	writeBuffer  *bytes.Buffer
}

func newLZ4Compressor() *lz4Compressor {
	return &lz4Compressor{
		compressor:   lz4.NewWriter(new(bytes.Buffer)),
		decompressor: lz4.NewReader(new(bytes.Buffer)),
		writeBuffer:  new(bytes.Buffer),
	}
}

func (c *lz4Compressor) Compress(data []byte) ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.writeBuffer.Reset()
	c.compressor.Reset(c.writeBuffer)
	if _, err := c.compressor.Write(data); err != nil {
		return nil, err
	}
	if err := c.compressor.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, c.writeBuffer.Len())
	copy(out, c.writeBuffer.Bytes())
	return out, nil
}

func (c *lz4Compressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.decompressor.Reset(bytes.NewReader(data))
	out := make([]byte, rawSize)
	if _, err := io.ReadFull(c.decompressor, out); err != nil {
		return nil, fmt.Errorf("Unable to decompress block: %w", err)
	}
	return out, nil
}

func (c *lz4Compressor) Destroy() {}

type zstdCompressor struct {
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("Unable to initialize compressor: %w", err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("Unable to initialize decompressor: %w", err)
	}
	return &zstdCompressor{compressor: compressor, decompressor: decompressor}, nil
}

func (c *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.compressor.EncodeAll(data, nil), nil
}

func (c *zstdCompressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	out, err := c.decompressor.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("Unable to decompress block: %w", err)
	}
	return out, nil
}

func (c *zstdCompressor) Destroy() {
	c.compressor.Close()
	c.decompressor.Close()
}

type noopCompressor struct{}

func (noopCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noopCompressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	return data, nil
}

func (noopCompressor) Destroy() {}
