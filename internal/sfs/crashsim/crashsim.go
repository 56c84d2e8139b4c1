// Package crashsim is a deliberately compact crash-simulation helper for
// the storage engine's tests. Rather than modeling an entire filesystem's
// durability boundary (writeback, directory syncs, per-handle sync
// state), crashsim only edits a closed log file directly: truncating it
// (partway through a record or at any byte), overwriting bytes in place,
// or appending garbage, to exercise recovery's tail-truncation and
// corruption handling (see DESIGN.md for more).
package crashsim

import (
	"fmt"
	"os"
)

// TruncateInsideRecord truncates the file at path so that it ends
// byteOffset bytes into the record starting at recordStart, simulating a
// process crash mid-write. byteOffset must be greater than zero and less
// than the record's total encoded length, or the cut is not "inside" a
// record at all.
func TruncateInsideRecord(path string, recordStart int64, byteOffset int) error {
	if byteOffset <= 0 {
		return fmt.Errorf("crashsim: byteOffset must be positive, got %d", byteOffset)
	}

	cutAt := recordStart + int64(byteOffset)

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("crashsim: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := f.Truncate(cutAt); err != nil {
		return fmt.Errorf("crashsim: truncate %s at %d: %w", path, cutAt, err)
	}

	return f.Sync()
}

// TruncateTo truncates the file at path to exactly n bytes, simulating a
// crash at an arbitrary byte boundary (not necessarily inside a record).
func TruncateTo(path string, n int64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("crashsim: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := f.Truncate(n); err != nil {
		return fmt.Errorf("crashsim: truncate %s at %d: %w", path, n, err)
	}

	return f.Sync()
}

// OverwriteAt writes b into the file at path starting at offset, without
// changing the file's length, simulating bit-level corruption of an
// otherwise fully-present record (as opposed to a truncated write).
func OverwriteAt(path string, offset int64, b []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("crashsim: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteAt(b, offset); err != nil {
		return fmt.Errorf("crashsim: overwrite %s at %d: %w", path, offset, err)
	}

	return f.Sync()
}

// AppendGarbage appends n arbitrary bytes to the file at path, simulating
// a record header that begins but whose framing never validates — used to
// test that recovery truncates trailing garbage that doesn't even parse as
// a length-prefixed record.
func AppendGarbage(path string, n int) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("crashsim: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	garbage := make([]byte, n)
	for i := range garbage {
		garbage[i] = 0xFF
	}

	if _, err := f.Write(garbage); err != nil {
		return fmt.Errorf("crashsim: append garbage to %s: %w", path, err)
	}

	return f.Sync()
}
