package sfs

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/calvinalkan/logkv/internal/kverrors"
)

// Pair is one key-value pair yielded by ScanLive or held in a Snapshot.
type Pair[K any, V any] struct {
	Key   K
	Value V
}

// ScanLive returns a lazy iterator over the live set. The index is
// snapshotted eagerly when ScanLive is called, so keys put or deleted
// after iteration begins may or may not appear — iteration is stable with
// respect to the snapshot taken at the call, not to later mutations. Each
// value is read from disk fresh as the sequence is consumed; no lock is
// held between yielded items.
func (s *Store[K, V]) ScanLive() iter.Seq2[Pair[K, V], error] {
	return func(yield func(Pair[K, V], error) bool) {
		s.gate.RLock()
		closed := s.closed
		poisoned := s.poisoned.Load()

		s.idxMu.RLock()
		snap := s.idx.snapshot()
		s.idxMu.RUnlock()

		s.gate.RUnlock()

		if closed {
			yield(Pair[K, V]{}, kverrors.ErrClosed)
			return
		}

		if poisoned {
			yield(Pair[K, V]{}, kverrors.ErrInvariant)
			return
		}

		for encodedKey, entry := range snap {
			if entry.tombstone {
				continue
			}

			s.gate.RLock()

			if s.closed {
				s.gate.RUnlock()
				yield(Pair[K, V]{}, kverrors.ErrClosed)

				return
			}

			pair, err := s.readPair([]byte(encodedKey), entry)
			s.gate.RUnlock()

			if !yield(pair, err) {
				return
			}

			if err != nil {
				return
			}
		}
	}
}

// Snapshot materialises every live pair into a map.
func (s *Store[K, V]) Snapshot() (map[string]Pair[K, V], error) {
	result := make(map[string]Pair[K, V])

	for pair, err := range s.ScanLive() {
		if err != nil {
			return nil, err
		}

		result[string(s.keyCodec.Encode(pair.Key))] = pair
	}

	return result, nil
}

// readPair decodes the key and reads+decodes the value for one index
// entry. It takes no lock of its own: callers hold whatever is needed to
// keep the underlying file descriptor alive.
func (s *Store[K, V]) readPair(encodedKey []byte, entry indexEntry) (Pair[K, V], error) {
	key, err := s.keyCodec.Decode(encodedKey)
	if err != nil {
		return Pair[K, V]{}, fmt.Errorf("sfs: decode key: %w", err)
	}

	valueBytes := make([]byte, entry.valueLength)
	if entry.valueLength > 0 {
		n, err := s.file.ReadAt(valueBytes, entry.valueOffset)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(valueBytes)) {
			return Pair[K, V]{}, s.poison(fmt.Errorf("sfs: read value at offset %d: %w: %w", entry.valueOffset, kverrors.ErrInvariant, err))
		}
	}

	value, err := s.valueCodec.Deserialise(valueBytes)
	if err != nil {
		return Pair[K, V]{}, fmt.Errorf("sfs: deserialise value: %w", err)
	}

	return Pair[K, V]{Key: key, Value: value}, nil
}
