// Package sfs implements the single-file store: one append-only log file,
// one in-memory key index, and the recovery and compaction machinery that
// keep them consistent across crashes.
package sfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/internal/kvlog"
	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/record"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

// maxChunkBytes bounds how much encoded record data a single batch write
// issues to the filesystem in one call.
const maxChunkBytes = 8 << 20 // 8 MiB

// Store is a single-file, log-structured key-value store for one shard.
//
// The gate admits many concurrent readers or one exclusive operation
// (compact, a truncating seed, flush, close). The writerSlot is a
// separate, single-capacity lock that serialises appenders among
// themselves without excluding readers — collapsing the two into one
// lock would forbid reads concurrent with writes.
type Store[K any, V any] struct {
	path         string
	fsys         kvfs.FS
	keyCodec     codec.KeyCodec[K]
	valueCodec   codec.ValueCodec[V]
	writeThrough bool
	logger       zerolog.Logger

	gate       sync.RWMutex
	writerSlot sync.Mutex

	idxMu  sync.RWMutex
	idx    index
	cursor int64

	file kvfs.File

	closed bool

	// poisoned is set once an [kverrors.ErrInvariant] is observed: a short
	// read at a recorded value offset means the index and the file have
	// drifted out of sync, and nothing about this instance can be trusted
	// from then on. Every operation checks it and fails fast rather than
	// risk returning corrupted data.
	poisoned atomic.Bool
}

// poison marks the store permanently unusable and returns err unchanged,
// so call sites can write `return s.poison(err)`.
func (s *Store[K, V]) poison(err error) error {
	s.poisoned.Store(true)
	return err
}

// Open opens (creating if absent) the log file at path and recovers its
// index by replaying it (see recover.go). writeThrough, when true, fsyncs
// every successful mutating operation before it returns.
//
// A nil codec falls back to the built-in default for its type parameter
// (see [codec.DefaultKeyCodec]); Open fails with
// [kverrors.ErrUnsupported] when no default exists.
func Open[K any, V any](fsys kvfs.FS, path string, keyCodec codec.KeyCodec[K], valueCodec codec.ValueCodec[V], writeThrough bool) (*Store[K, V], error) {
	if keyCodec == nil {
		var err error

		keyCodec, err = codec.DefaultKeyCodec[K]()
		if err != nil {
			return nil, fmt.Errorf("sfs: open %s: %w", path, err)
		}
	}

	if valueCodec == nil {
		var err error

		valueCodec, err = codec.DefaultValueCodec[V]()
		if err != nil {
			return nil, fmt.Errorf("sfs: open %s: %w", path, err)
		}
	}

	file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sfs: open %s: %w: %w", path, kverrors.ErrIO, err)
	}

	s := &Store[K, V]{
		path:         path,
		fsys:         fsys,
		keyCodec:     keyCodec,
		valueCodec:   valueCodec,
		writeThrough: writeThrough,
		logger:       kvlog.WithComponent("sfs"),
		file:         file,
		idx:          newIndex(),
	}

	if err := s.recover(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("sfs: recover %s: %w", path, err)
	}

	return s, nil
}

// Get returns the current value for key, or [kverrors.ErrNotFound] if the
// key is absent or tombstoned.
func (s *Store[K, V]) Get(key K) (V, error) {
	var zero V

	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.closed {
		return zero, kverrors.ErrClosed
	}

	if s.poisoned.Load() {
		return zero, kverrors.ErrInvariant
	}

	encodedKey := s.keyCodec.Encode(key)

	s.idxMu.RLock()
	entry, ok := s.idx.get(encodedKey)
	s.idxMu.RUnlock()

	if !ok || entry.tombstone {
		return zero, kverrors.ErrNotFound
	}

	valueBytes := make([]byte, entry.valueLength)
	if entry.valueLength > 0 {
		n, err := s.file.ReadAt(valueBytes, entry.valueOffset)
		if err != nil && !(errors.Is(err, io.EOF) && n == len(valueBytes)) {
			return zero, s.poison(fmt.Errorf("sfs: read value at offset %d: %w: %w", entry.valueOffset, kverrors.ErrInvariant, err))
		}
	}

	value, err := s.valueCodec.Deserialise(valueBytes)
	if err != nil {
		return zero, fmt.Errorf("sfs: deserialise value for key: %w", err)
	}

	return value, nil
}

// Put upserts one key-value pair.
func (s *Store[K, V]) Put(key K, value V) error {
	encodedKey := s.keyCodec.Encode(key)

	encodedValue, err := s.valueCodec.Serialise(value)
	if err != nil {
		return fmt.Errorf("sfs: serialise value: %w", err)
	}

	rec := record.Record{Op: record.OpPut, Key: encodedKey, Value: encodedValue}

	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.closed {
		return kverrors.ErrClosed
	}

	if s.poisoned.Load() {
		return kverrors.ErrInvariant
	}

	s.writerSlot.Lock()
	defer s.writerSlot.Unlock()

	writeOffset := s.cursor

	buf := record.Append(nil, rec)

	if err := s.writeAt(buf, writeOffset); err != nil {
		return err
	}

	s.cursor = writeOffset + int64(len(buf))

	if s.writeThrough {
		if err := s.syncLocked(); err != nil {
			return err
		}
	}

	valueOffset := writeOffset + int64(record.ValueOffsetInRecord(len(encodedKey)))

	s.idxMu.Lock()
	s.idx.put(encodedKey, indexEntry{valueOffset: valueOffset, valueLength: uint32(len(encodedValue))})
	s.idxMu.Unlock()

	return nil
}

// Delete removes key if live, returning true iff a live key became absent.
// A delete of an already-absent or already-tombstoned key is a no-op that
// writes nothing, matching point-put's idempotence.
func (s *Store[K, V]) Delete(key K) (bool, error) {
	encodedKey := s.keyCodec.Encode(key)

	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.closed {
		return false, kverrors.ErrClosed
	}

	if s.poisoned.Load() {
		return false, kverrors.ErrInvariant
	}

	s.writerSlot.Lock()
	defer s.writerSlot.Unlock()

	s.idxMu.RLock()
	entry, ok := s.idx.get(encodedKey)
	s.idxMu.RUnlock()

	if !ok || entry.tombstone {
		return false, nil
	}

	rec := record.Record{Op: record.OpDel, Key: encodedKey}
	buf := record.Append(nil, rec)

	writeOffset := s.cursor

	if err := s.writeAt(buf, writeOffset); err != nil {
		return false, err
	}

	s.cursor = writeOffset + int64(len(buf))

	if s.writeThrough {
		if err := s.syncLocked(); err != nil {
			return false, err
		}
	}

	s.idxMu.Lock()
	s.idx.tombstone(encodedKey)
	s.idxMu.Unlock()

	return true, nil
}

// Flush durably syncs any outstanding writes.
func (s *Store[K, V]) Flush() error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if s.closed {
		return kverrors.ErrClosed
	}

	if s.poisoned.Load() {
		return kverrors.ErrInvariant
	}

	return s.syncLocked()
}

// Close releases the store's file handle. It performs no implicit flush
// beyond what mutating operations already requested.
func (s *Store[K, V]) Close() error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("sfs: close %s: %w: %w", s.path, kverrors.ErrIO, err)
	}

	return nil
}

// Stats reports point-in-time counters about the store, for diagnostics
// and the cmd/kvtool stats and compact subcommands.
type Stats struct {
	LiveKeys  int
	FileBytes int64
}

// Stats returns a snapshot of the store's size.
func (s *Store[K, V]) Stats() Stats {
	s.gate.RLock()
	defer s.gate.RUnlock()

	s.idxMu.RLock()
	live := s.idx.liveCount()
	s.idxMu.RUnlock()

	return Stats{LiveKeys: live, FileBytes: s.cursor}
}

// writeAt issues a single positional write at offset. Callers must hold
// the writerSlot.
func (s *Store[K, V]) writeAt(buf []byte, offset int64) error {
	n, err := s.file.WriteAt(buf, offset)
	if err != nil {
		return fmt.Errorf("sfs: write at offset %d: %w: %w", offset, kverrors.ErrIO, err)
	}

	if n != len(buf) {
		return fmt.Errorf("sfs: short write at offset %d: wrote %d of %d bytes: %w", offset, n, len(buf), kverrors.ErrIO)
	}

	return nil
}

// syncLocked fsyncs the file. Callers must hold at least the gate.
func (s *Store[K, V]) syncLocked() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sfs: fsync %s: %w: %w", s.path, kverrors.ErrIO, err)
	}

	return nil
}
