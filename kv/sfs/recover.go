package sfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/kv/record"
)

// recover replays the log from offset 0, rebuilding the index and the
// cursor. A clean trailing partial record — the file ending before the
// prefix-declared record length is actually available — is truncated
// away silently: that is exactly what a process crash mid-write leaves
// behind. A record whose declared length DOES fit within the file but
// whose framing is internally inconsistent (header lengths that don't
// add up, or a suffix that disagrees with the prefix) is not explainable
// by a clean crash — the bytes a crash would have cut off simply
// wouldn't be there — so that is mid-file corruption and fails Open with
// [kverrors.ErrIntegrity] instead.
//
// recover does not hold the gate: it runs during Open, before s is
// published to any caller.
func (s *Store[K, V]) recover() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w: %w", kverrors.ErrIO, err)
	}

	size := info.Size()

	var offset int64

	header := make([]byte, record.LenFieldSize+record.HeaderSize)

	for offset < size {
		n, err := s.file.ReadAt(header, offset)
		if n < len(header) {
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read header at %d: %w: %w", offset, kverrors.ErrIO, err)
			}

			break // partial header at the tail: truncate here.
		}

		payloadLen := binary.LittleEndian.Uint32(header)
		opByte := header[record.LenFieldSize]
		keyLen := binary.LittleEndian.Uint32(header[record.LenFieldSize+1:])
		valLen := binary.LittleEndian.Uint32(header[record.LenFieldSize+5:])

		recordLen := int64(record.LenFieldSize) + int64(payloadLen) + int64(record.LenFieldSize)
		if offset+recordLen > size {
			break // record claims more bytes than the file has left: partial tail, truncate.
		}

		// From here on the file has every byte this record claims to occupy.
		// Any framing failure below cannot be a truncated write — it is
		// corruption discovered mid-file, and fails the open outright.

		if uint32(record.HeaderSize)+keyLen+valLen != payloadLen {
			s.logger.Warn().Str("path", s.path).Int64("offset", offset).Msg("recovery found a fully-present record whose header lengths overrun its payload")

			return fmt.Errorf("recover: record at offset %d: header lengths %d+%d overrun declared payload %d: %w", offset, keyLen, valLen, payloadLen, kverrors.ErrIntegrity)
		}

		keyStart := offset + int64(len(header))
		valStart := keyStart + int64(keyLen)

		key := make([]byte, keyLen)
		if keyLen > 0 {
			if n, err := s.file.ReadAt(key, keyStart); err != nil || int64(n) != int64(keyLen) {
				return fmt.Errorf("read key at %d: %w: %w", keyStart, kverrors.ErrIO, err)
			}
		}

		suffixBuf := make([]byte, record.LenFieldSize)
		if n, err := s.file.ReadAt(suffixBuf, offset+recordLen-int64(record.LenFieldSize)); n < len(suffixBuf) || (err != nil && !errors.Is(err, io.EOF)) {
			return fmt.Errorf("read suffix at %d: %w: %w", offset+recordLen-int64(record.LenFieldSize), kverrors.ErrIO, err)
		}

		suffix := binary.LittleEndian.Uint32(suffixBuf)
		if suffix != payloadLen {
			s.logger.Warn().Str("path", s.path).Int64("offset", offset).Msg("recovery found a fully-present record whose prefix and suffix length disagree")

			return fmt.Errorf("recover: record at offset %d: prefix length %d disagrees with suffix %d: %w", offset, payloadLen, suffix, kverrors.ErrIntegrity)
		}

		switch record.Op(opByte) {
		case record.OpPut:
			s.idx.put(key, indexEntry{valueOffset: valStart, valueLength: valLen})
		case record.OpDel:
			s.idx.tombstone(key)
		default:
			s.logger.Warn().Str("path", s.path).Int64("offset", offset).Uint8("op", opByte).Msg("recovery found a fully-present record with an unrecognised op byte")

			return fmt.Errorf("recover: record at offset %d: unrecognised op %d: %w", offset, opByte, kverrors.ErrIntegrity)
		}

		offset += recordLen
	}

	if offset < size {
		s.logger.Debug().Str("path", s.path).Int64("kept", offset).Int64("discarded", size-offset).Msg("recovery truncated a partial tail record")

		if err := s.file.Truncate(offset); err != nil {
			return fmt.Errorf("truncate to %d: %w: %w", offset, kverrors.ErrIO, err)
		}
	}

	s.cursor = offset

	return nil
}
