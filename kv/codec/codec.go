// Package codec defines the two small polymorphic contracts the storage
// engine is built over — a key codec and a value serialiser — plus the
// built-in implementations: UTF-8 strings, raw bytes, 128-bit GUIDs,
// 64-bit signed integers, and a JSON-backed value codec for arbitrary
// typed values.
//
// Keys and values are opaque to the engine. Any structured interpretation
// (tables, rows, columns) is the caller's concern, not the codec's.
package codec

// KeyCodec converts between an application key type K and the bytes the
// engine stores on disk, and supplies the hash the engine uses to route
// keys to shards.
//
// hash64 must be deterministic across processes and platforms — the same
// key must hash identically regardless of machine endianness — because
// the shard a key lives in depends on it. The string, bytes and GUID
// codecs satisfy this by hashing their encoded bytes; the int64 codec
// hashes the integer value arithmetically, which does not depend on byte
// order.
type KeyCodec[K any] interface {
	// Encode serializes a key to its on-disk byte form.
	Encode(key K) []byte

	// Decode parses a key from its on-disk byte form. It is the inverse of
	// Encode: Decode(Encode(k)) must equal k.
	Decode(b []byte) (K, error)

	// Equal reports whether two keys are equivalent under this codec.
	Equal(a, b K) bool

	// Hash64 returns a stable 64-bit hash of the key, used for sharding.
	Hash64(key K) uint64
}

// ValueCodec converts between an application value type V and the bytes
// the engine stores on disk.
type ValueCodec[V any] interface {
	// Serialise encodes a value to its on-disk byte form.
	Serialise(value V) ([]byte, error)

	// Deserialise decodes a value from its on-disk byte form.
	Deserialise(b []byte) (V, error)
}
