package sfs

import (
	"context"
	"fmt"
	"iter"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/kv/record"
)

// pendingRecord is a record already encoded, paired with what the index
// needs once the chunk containing it is durably written.
type pendingRecord struct {
	rec         record.Record
	encodedKey  []byte
	valueLength uint32
	tombstone   bool
}

// PutBatch upserts every pair in pairs. Records are chunked into
// contiguous buffers of at most ~8 MiB before each chunk issues a single
// write, to keep syscall and allocation overhead proportional to data
// volume rather than item count. If flush is true, every chunk is fsynced
// before the next is prepared; the index is only updated for a chunk
// after its write (and optional fsync) returns, so it never reflects
// bytes that are not yet on disk.
//
// ctx is checked between chunks: a cancelled context stops the batch
// before committing another chunk, but never aborts a write already in
// flight. Everything already fsynced remains durable.
func (s *Store[K, V]) PutBatch(ctx context.Context, pairs iter.Seq2[K, V], flush bool) error {
	records := make([]pendingRecord, 0)

	for key, value := range pairs {
		encodedKey := s.keyCodec.Encode(key)

		encodedValue, err := s.valueCodec.Serialise(value)
		if err != nil {
			return fmt.Errorf("sfs: serialise value: %w", err)
		}

		records = append(records, pendingRecord{
			rec:         record.Record{Op: record.OpPut, Key: encodedKey, Value: encodedValue},
			encodedKey:  encodedKey,
			valueLength: uint32(len(encodedValue)),
		})
	}

	return s.writeBatch(ctx, records, flush)
}

// DeleteBatch deletes every key in keys. Matching point-delete, a key
// that is already absent or tombstoned writes no DEL record and is
// silently skipped (see DESIGN.md for the rationale).
func (s *Store[K, V]) DeleteBatch(ctx context.Context, keys iter.Seq[K], flush bool) error {
	records := make([]pendingRecord, 0)

	for key := range keys {
		encodedKey := s.keyCodec.Encode(key)

		s.idxMu.RLock()
		entry, ok := s.idx.get(encodedKey)
		s.idxMu.RUnlock()

		if !ok || entry.tombstone {
			continue
		}

		records = append(records, pendingRecord{
			rec:        record.Record{Op: record.OpDel, Key: encodedKey},
			encodedKey: encodedKey,
			tombstone:  true,
		})
	}

	return s.writeBatch(ctx, records, flush)
}

// writeBatch partitions recs into ≤maxChunkBytes chunks, writes each chunk
// as one contiguous positional write, and updates the index only once the
// chunk's write (and optional fsync) has returned.
func (s *Store[K, V]) writeBatch(ctx context.Context, recs []pendingRecord, flush bool) error {
	for start := 0; start < len(recs); {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sfs: batch cancelled: %w", err)
		}

		end, buf := buildChunk(recs, start)

		if err := s.commitChunk(recs[start:end], buf, flush); err != nil {
			return err
		}

		start = end
	}

	return nil
}

// buildChunk serialises records starting at start into one contiguous
// buffer until either maxChunkBytes is reached or recs is exhausted. It
// always includes at least one record, even if that record alone exceeds
// maxChunkBytes, so an oversized single record is never stuck.
func buildChunk(recs []pendingRecord, start int) (end int, buf []byte) {
	end = start

	for end < len(recs) {
		next := recs[end].rec.EncodedLen()
		if end > start && len(buf)+next > maxChunkBytes {
			break
		}

		buf = record.Append(buf, recs[end].rec)
		end++
	}

	return end, buf
}

// commitChunk writes buf at the current cursor under the writer slot, then
// updates the index for every record in chunk once the write (and any
// fsync) has returned successfully.
func (s *Store[K, V]) commitChunk(chunk []pendingRecord, buf []byte, flush bool) error {
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

	if err := s.writeAt(buf, writeOffset); err != nil {
		return err
	}

	s.cursor = writeOffset + int64(len(buf))

	if s.writeThrough || flush {
		if err := s.syncLocked(); err != nil {
			return err
		}
	}

	offset := writeOffset

	s.idxMu.Lock()

	for _, pr := range chunk {
		if pr.tombstone {
			s.idx.tombstone(pr.encodedKey)
		} else {
			valueOffset := offset + int64(record.ValueOffsetInRecord(len(pr.encodedKey)))
			s.idx.put(pr.encodedKey, indexEntry{valueOffset: valueOffset, valueLength: pr.valueLength})
		}

		offset += int64(pr.rec.EncodedLen())
	}

	s.idxMu.Unlock()

	return nil
}

// Seed bulk-loads pairs. If truncate is true, the file is truncated to
// zero length and the index cleared first, under the exclusive gate, so
// concurrent readers never observe a half-truncated file. Otherwise Seed
// behaves exactly like PutBatch(pairs, flush=true).
func (s *Store[K, V]) Seed(ctx context.Context, pairs iter.Seq2[K, V], truncate bool) error {
	if !truncate {
		return s.PutBatch(ctx, pairs, true)
	}

	s.gate.Lock()

	if s.closed {
		s.gate.Unlock()
		return kverrors.ErrClosed
	}

	s.writerSlot.Lock()

	if err := s.file.Truncate(0); err != nil {
		s.writerSlot.Unlock()
		s.gate.Unlock()

		return fmt.Errorf("sfs: seed truncate: %w: %w", kverrors.ErrIO, err)
	}

	s.cursor = 0

	s.idxMu.Lock()
	s.idx = newIndex()
	s.idxMu.Unlock()

	// A truncating seed wipes both the file and the index, so any prior
	// index/file drift is gone with them: the store is trustworthy again.
	s.poisoned.Store(false)

	s.writerSlot.Unlock()
	s.gate.Unlock()

	return s.PutBatch(ctx, pairs, true)
}
