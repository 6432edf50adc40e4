package data

// Block is an immutable run of serialized records. Blocks are the unit of
// storage within Files and BlockQueues, and the unit of transfer between workers.
type Block struct {
	Data     []byte
	NumItems int
}

// Size returns the number of bytes of record data in this Block
func (b Block) Size() int {
	return len(b.Data)
}

// A BlockSink accepts Blocks produced by a BlockWriter
type BlockSink interface {
	AppendBlock(b Block) error // AppendBlock hands ownership of a Block to this sink
	Close() error              // Close signals that no further Blocks will be appended
}

// A BlockSource produces Blocks for a BlockReader
type BlockSource interface {
	NextBlock() (Block, bool, error) // NextBlock returns the next Block, or false if the source is exhausted. May block.
}
