package codec

import "hash/fnv"

// fnv1a64 hashes b with 64-bit FNV-1a. It operates purely on bytes, so
// it is endianness-independent by construction — the caller is
// responsible for feeding it an already-little-endian-encoded key when
// numeric width matters.
func fnv1a64(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b) // hash.Hash64.Write never returns an error.

	return h.Sum64()
}
