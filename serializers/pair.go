package serializers

import (
	"github.com/go-sif/dataflow"
)

// KeyValue is a record made of a key and a value
type KeyValue[K any, V any] struct {
	Key   K
	Value V
}

type pairSerializer[K any, V any] struct {
	keys   dataflow.Serializer[K]
	values dataflow.Serializer[V]
}

// Pair serializes KeyValues by concatenating their key and value encodings
func Pair[K any, V any](keys dataflow.Serializer[K], values dataflow.Serializer[V]) dataflow.Serializer[KeyValue[K, V]] {
	return pairSerializer[K, V]{keys: keys, values: values}
}

func (s pairSerializer[K, V]) Append(buf []byte, v KeyValue[K, V]) ([]byte, error) {
	buf, err := s.keys.Append(buf, v.Key)
	if err != nil {
		return nil, err
	}
	return s.values.Append(buf, v.Value)
}

func (s pairSerializer[K, V]) Read(buf []byte) (KeyValue[K, V], int, error) {
	var res KeyValue[K, V]
	k, kn, err := s.keys.Read(buf)
	if err != nil {
		return res, 0, err
	}
	v, vn, err := s.values.Read(buf[kn:])
	if err != nil {
		return res, 0, err
	}
	res.Key = k
	res.Value = v
	return res, kn + vn, nil
}

func (s pairSerializer[K, V]) FixedSize() int {
	ks, vs := s.keys.FixedSize(), s.values.FixedSize()
	if ks == 0 || vs == 0 {
		return 0
	}
	return ks + vs
}
