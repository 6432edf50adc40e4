package dataflow

// A Serializer converts records of type T to and from their byte representation within a Block.
// Records are opaque to the engine; only a Serializer knows their layout.
type Serializer[T any] interface {
	Append(buf []byte, v T) ([]byte, error) // Append encodes v onto the end of buf, returning the extended buffer
	Read(buf []byte) (T, int, error)        // Read decodes a single value from the front of buf, returning the number of bytes consumed
	FixedSize() int                         // FixedSize returns the encoded size of every value, or 0 if values vary in length
}
