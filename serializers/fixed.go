package serializers

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-sif/dataflow"
)

type uint64Serializer struct{}

// Uint64 serializes uint64 values as 8 big-endian bytes
func Uint64() dataflow.Serializer[uint64] {
	return uint64Serializer{}
}

func (uint64Serializer) Append(buf []byte, v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(buf, v), nil
}

func (uint64Serializer) Read(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, shortBuffer(8, len(buf))
	}
	return binary.BigEndian.Uint64(buf), 8, nil
}

func (uint64Serializer) FixedSize() int {
	return 8
}

type int64Serializer struct{}

// Int64 serializes int64 values as 8 big-endian bytes
func Int64() dataflow.Serializer[int64] {
	return int64Serializer{}
}

func (int64Serializer) Append(buf []byte, v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(buf, uint64(v)), nil
}

func (int64Serializer) Read(buf []byte) (int64, int, error) {
	if len(buf) < 8 {
		return 0, 0, shortBuffer(8, len(buf))
	}
	return int64(binary.BigEndian.Uint64(buf)), 8, nil
}

func (int64Serializer) FixedSize() int {
	return 8
}

type intSerializer struct{}

// Int serializes int values as 8 big-endian bytes
func Int() dataflow.Serializer[int] {
	return intSerializer{}
}

func (intSerializer) Append(buf []byte, v int) ([]byte, error) {
	return binary.BigEndian.AppendUint64(buf, uint64(int64(v))), nil
}

func (intSerializer) Read(buf []byte) (int, int, error) {
	if len(buf) < 8 {
		return 0, 0, shortBuffer(8, len(buf))
	}
	return int(int64(binary.BigEndian.Uint64(buf))), 8, nil
}

func (intSerializer) FixedSize() int {
	return 8
}

type float64Serializer struct{}

// Float64 serializes float64 values as their 8-byte IEEE 754 representation
func Float64() dataflow.Serializer[float64] {
	return float64Serializer{}
}

func (float64Serializer) Append(buf []byte, v float64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(v)), nil
}

func (float64Serializer) Read(buf []byte) (float64, int, error) {
	if len(buf) < 8 {
		return 0, 0, shortBuffer(8, len(buf))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf)), 8, nil
}

func (float64Serializer) FixedSize() int {
	return 8
}

func shortBuffer(need int, have int) error {
	return fmt.Errorf("Buffer holds %d bytes, but at least %d are required", have, need)
}
