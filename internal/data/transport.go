package data

import "context"

// Transport opens outbound Block streams to peer workers
type Transport interface {
	OpenStream(ctx context.Context, peer int, channelID uint64) (BlockStream, error) // OpenStream opens an ordered stream of Blocks to peer for a Channel
}

// A BlockStream carries Blocks, in order, from this worker to one peer for one Channel
type BlockStream interface {
	Send(b Block) error // Send transfers a Block, blocking under backpressure
	Close() error       // Close tells the peer that this worker will send nothing further on the Channel
}

// Receiver accepts inbound traffic which a Transport has received from peers
type Receiver interface {
	Deliver(channelID uint64, sender int, b Block) error  // Deliver appends a Block received from sender
	CloseInbound(channelID uint64, sender int) error      // CloseInbound records that sender closed its writer to this worker
	AbortInbound(channelID uint64, sender int, err error) // AbortInbound records that the stream from sender failed
}
