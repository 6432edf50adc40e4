package serializers

import (
	"encoding/binary"
	"fmt"

	"github.com/go-sif/dataflow"
	"google.golang.org/protobuf/proto"
)

// readPrefixed reads a uvarint length prefix followed by that many bytes
func readPrefixed(buf []byte) ([]byte, int, error) {
	size, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, 0, fmt.Errorf("Invalid length prefix")
	}
	end := n + int(size)
	if end > len(buf) || end < n {
		return nil, 0, shortBuffer(end, len(buf))
	}
	return buf[n:end], end, nil
}

type stringSerializer struct{}

// String serializes strings with a uvarint length prefix
func String() dataflow.Serializer[string] {
	return stringSerializer{}
}

func (stringSerializer) Append(buf []byte, v string) ([]byte, error) {
	buf = binary.AppendUvarint(buf, uint64(len(v)))
	return append(buf, v...), nil
}

func (stringSerializer) Read(buf []byte) (string, int, error) {
	data, n, err := readPrefixed(buf)
	if err != nil {
		return "", 0, err
	}
	return string(data), n, nil
}

func (stringSerializer) FixedSize() int {
	return 0
}

type bytesSerializer struct{}

// Bytes serializes byte slices with a uvarint length prefix. Decoded slices are copies.
func Bytes() dataflow.Serializer[[]byte] {
	return bytesSerializer{}
}

func (bytesSerializer) Append(buf []byte, v []byte) ([]byte, error) {
	buf = binary.AppendUvarint(buf, uint64(len(v)))
	return append(buf, v...), nil
}

func (bytesSerializer) Read(buf []byte) ([]byte, int, error) {
	data, n, err := readPrefixed(buf)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, n, nil
}

func (bytesSerializer) FixedSize() int {
	return 0
}

type protoSerializer[T proto.Message] struct {
	create func() T
}

// Proto serializes protobuf messages with a uvarint length prefix. create must
// return a new, empty message to decode into.
func Proto[T proto.Message](create func() T) dataflow.Serializer[T] {
	return protoSerializer[T]{create: create}
}

func (s protoSerializer[T]) Append(buf []byte, v T) ([]byte, error) {
	size := proto.Size(v)
	buf = binary.AppendUvarint(buf, uint64(size))
	return proto.MarshalOptions{}.MarshalAppend(buf, v)
}

func (s protoSerializer[T]) Read(buf []byte) (T, int, error) {
	var zero T
	data, n, err := readPrefixed(buf)
	if err != nil {
		return zero, 0, err
	}
	msg := s.create()
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, 0, fmt.Errorf("Unable to decode protobuf message: %w", err)
	}
	return msg, n, nil
}

func (s protoSerializer[T]) FixedSize() int {
	return 0
}
