package codec

import (
	"fmt"

	"github.com/google/uuid"
)

// GUIDKeyCodec encodes keys as the 16 raw bytes of a [uuid.UUID], in the
// order the uuid package stores them (RFC 4122, most significant byte
// first), and hashes those bytes with FNV-1a. It does not reorder the
// bytes into a little-endian layout.
type GUIDKeyCodec struct{}

var _ KeyCodec[uuid.UUID] = GUIDKeyCodec{}

// Encode returns the 16 raw bytes of the GUID.
func (GUIDKeyCodec) Encode(key uuid.UUID) []byte {
	return append([]byte(nil), key[:]...)
}

// Decode parses a 16-byte GUID. It fails if b is not exactly 16 bytes.
func (GUIDKeyCodec) Decode(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.UUID{}, fmt.Errorf("codec: guid key must be 16 bytes, got %d", len(b))
	}

	var id uuid.UUID
	copy(id[:], b)

	return id, nil
}

// Equal compares GUIDs byte-for-byte.
func (GUIDKeyCodec) Equal(a, b uuid.UUID) bool {
	return a == b
}

// Hash64 hashes the GUID's raw bytes with FNV-1a.
func (GUIDKeyCodec) Hash64(key uuid.UUID) uint64 {
	return fnv1a64(key[:])
}
