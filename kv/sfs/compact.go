package sfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/kv/record"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

// compactingSuffix names the temporary file compaction writes to before
// swapping it into place. The name is fixed (not randomised) so that a
// crash mid-compaction leaves its residue under a predictable name for
// operators to find and clean up.
const compactingSuffix = ".compacting"

// Compact rewrites the log so it contains exactly one PUT per live key and
// no DEL records. It runs under the exclusive gate and the writer slot for
// its entire duration — compaction is stop-the-world for this shard. An
// interrupted compaction leaves the original file untouched; only the
// `<path>.compacting` residue needs cleanup, and the next compaction
// overwrites it unconditionally.
//
// ctx is checked between records while the compacted copy is being
// written. A cancelled context abandons the rewrite before the swap, so
// the live file is untouched; only the temporary residue is left behind,
// exactly as after a crash.
func (s *Store[K, V]) Compact(ctx context.Context) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if s.closed {
		return kverrors.ErrClosed
	}

	if s.poisoned.Load() {
		return kverrors.ErrInvariant
	}

	s.writerSlot.Lock()
	defer s.writerSlot.Unlock()

	s.logger.Debug().Str("path", s.path).Msg("compaction starting")

	snap := s.idx.snapshot()
	tmpPath := s.path + compactingSuffix

	newFile, err := s.fsys.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sfs: compact: open %s: %w: %w", tmpPath, kverrors.ErrIO, err)
	}

	newIdx, newLen, err := s.rewriteCompacted(ctx, newFile, snap)
	if err != nil {
		_ = newFile.Close()
		return err
	}

	if err := newFile.Sync(); err != nil {
		_ = newFile.Close()
		return fmt.Errorf("sfs: compact: fsync %s: %w: %w", tmpPath, kverrors.ErrIO, err)
	}

	if err := newFile.Close(); err != nil {
		return fmt.Errorf("sfs: compact: close %s: %w: %w", tmpPath, kverrors.ErrIO, err)
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("sfs: compact: close old file: %w: %w", kverrors.ErrIO, err)
	}

	if err := s.fsys.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("sfs: compact: swap in %s: %w: %w", tmpPath, kverrors.ErrIO, err)
	}

	reopened, err := s.fsys.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("sfs: compact: reopen %s: %w: %w", s.path, kverrors.ErrIO, err)
	}

	s.file = reopened

	s.idxMu.Lock()
	s.idx = newIdx
	s.idxMu.Unlock()

	s.cursor = newLen

	s.logger.Debug().Str("path", s.path).Int("live_keys", len(newIdx)).Msg("compaction finished")

	return nil
}

// rewriteCompacted reads each live value from the current file at its
// recorded offset and appends a fresh PUT record to newFile, building the
// index that corresponds to the rewritten layout. Records accumulate in
// a buffer flushed every maxChunkBytes, the same write-size bound the
// batch path uses, so compacting a large store does not hold the whole
// rewritten log in memory. ctx is observed between records; no write
// already issued is aborted mid-syscall.
func (s *Store[K, V]) rewriteCompacted(ctx context.Context, newFile kvfs.File, snap index) (index, int64, error) {
	newIdx := newIndex()

	var offset int64

	var buf []byte

	var flushedBytes int64

	flushBuf := func() error {
		n, err := newFile.WriteAt(buf, flushedBytes)
		if err != nil {
			return fmt.Errorf("sfs: compact: write: %w: %w", kverrors.ErrIO, err)
		}

		if n != len(buf) {
			return fmt.Errorf("sfs: compact: short write: wrote %d of %d: %w", n, len(buf), kverrors.ErrIO)
		}

		flushedBytes += int64(n)
		buf = buf[:0]

		return nil
	}

	for encodedKey, entry := range snap {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("sfs: compact cancelled: %w", err)
		}

		if entry.tombstone {
			continue
		}

		value := make([]byte, entry.valueLength)
		if entry.valueLength > 0 {
			n, err := s.file.ReadAt(value, entry.valueOffset)
			if n != len(value) {
				return nil, 0, s.poison(fmt.Errorf("sfs: compact: short read at %d: %w: %w", entry.valueOffset, kverrors.ErrInvariant, err))
			}

			if err != nil && !errors.Is(err, io.EOF) {
				return nil, 0, s.poison(fmt.Errorf("sfs: compact: read value at %d: %w: %w", entry.valueOffset, kverrors.ErrInvariant, err))
			}
		}

		rec := record.Record{Op: record.OpPut, Key: []byte(encodedKey), Value: value}

		buf = record.Append(buf, rec)

		newIdx.put([]byte(encodedKey), indexEntry{
			valueOffset: offset + int64(record.ValueOffsetInRecord(len(encodedKey))),
			valueLength: entry.valueLength,
		})

		offset += int64(rec.EncodedLen())

		if len(buf) >= maxChunkBytes {
			if err := flushBuf(); err != nil {
				return nil, 0, err
			}
		}
	}

	if len(buf) > 0 {
		if err := flushBuf(); err != nil {
			return nil, 0, err
		}
	}

	return newIdx, offset, nil
}
