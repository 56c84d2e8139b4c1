package codec

import "bytes"

// BytesKeyCodec treats the key as an opaque byte sequence, passed through
// unmodified.
type BytesKeyCodec struct{}

var _ KeyCodec[[]byte] = BytesKeyCodec{}

// Encode returns a copy of key so the engine never aliases caller-owned
// memory across the call boundary.
func (BytesKeyCodec) Encode(key []byte) []byte {
	return append([]byte(nil), key...)
}

// Decode returns a copy of b.
func (BytesKeyCodec) Decode(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
}

// Equal compares keys byte-for-byte.
func (BytesKeyCodec) Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// Hash64 hashes the raw key bytes with FNV-1a.
func (BytesKeyCodec) Hash64(key []byte) uint64 {
	return fnv1a64(key)
}

// BytesValueCodec treats the value as an opaque byte sequence, passed
// through unmodified.
type BytesValueCodec struct{}

var _ ValueCodec[[]byte] = BytesValueCodec{}

// Serialise returns a copy of value.
func (BytesValueCodec) Serialise(value []byte) ([]byte, error) {
	return append([]byte(nil), value...), nil
}

// Deserialise returns a copy of b.
func (BytesValueCodec) Deserialise(b []byte) ([]byte, error) {
	return append([]byte(nil), b...), nil
}
