package net

import (
	"encoding/binary"
	"fmt"

	"github.com/go-sif/dataflow/internal/data"
)

// encodeFrame prefixes a Block's data with its record count
func encodeFrame(b data.Block) []byte {
	frame := make([]byte, 0, binary.MaxVarintLen64+len(b.Data))
	frame = binary.AppendUvarint(frame, uint64(b.NumItems))
	return append(frame, b.Data...)
}

func decodeFrame(frame []byte) (data.Block, error) {
	numItems, n := binary.Uvarint(frame)
	if n <= 0 {
		return data.Block{}, fmt.Errorf("Malformed block frame of %d bytes", len(frame))
	}
	return data.Block{Data: frame[n:], NumItems: int(numItems)}, nil
}
