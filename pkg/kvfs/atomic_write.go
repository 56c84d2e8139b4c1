package kvfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be
// synced after the rename. The new file is in place, but its directory
// entry's durability is not guaranteed. Detectable with
// errors.Is(err, ErrAtomicWriteDirSync).
var ErrAtomicWriteDirSync = errors.New("dir sync")

// markerPerm is the mode atomic writes leave their target file with.
const markerPerm os.FileMode = 0o644

// AtomicWriter replaces a small file's contents without ever exposing a
// half-written version: it writes to a temp file in the same directory,
// fsyncs it, renames it over the target, then fsyncs the directory.
//
// The engine uses it for metadata like the sharded store's shard-count
// marker. Log appends do not go through it — they are positional writes
// against a file the store already owns — and neither does compaction's
// swap, whose temp file must live under a fixed, predictable name.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter backed by fs. Panics if fs is
// nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// Write writes r's contents to path atomically and durably.
//
// If only the final directory sync failed, the returned error satisfies
// errors.Is(err, ErrAtomicWriteDirSync) and the file content itself is
// in place.
func (w *AtomicWriter) Write(path string, r io.Reader) error {
	if r == nil {
		panic("reader is nil")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmpFile, tmpPath, err := w.createTemp(dir, base)
	if err != nil {
		return err
	}

	if err := w.fillTemp(tmpFile, tmpPath, r); err != nil {
		return errors.Join(err, w.discardTemp(tmpFile, tmpPath))
	}

	if err := tmpFile.Close(); err != nil {
		return errors.Join(fmt.Errorf("close temp file %q: %w", tmpPath, err), w.removeTemp(tmpPath))
	}

	if err := w.fs.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("rename %q to %q: %w", tmpPath, path, err), w.removeTemp(tmpPath))
	}

	return w.syncDir(dir)
}

// fillTemp chmods, writes, and fsyncs the temp file. Chmod runs first so
// the bytes never exist under a mode the target was not asked for, even
// if the process's umask masked the create.
func (w *AtomicWriter) fillTemp(f File, path string, r io.Reader) error {
	if err := f.Chmod(markerPerm); err != nil {
		return fmt.Errorf("chmod temp file %q: %w", path, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write temp file %q: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file %q: %w", path, err)
	}

	return nil
}

const atomicWriteMaxAttempts = 10000

var atomicWriteCounter atomic.Uint64

// createTemp opens a fresh, exclusively-created temp file next to the
// target so the eventual rename never crosses a filesystem boundary.
func (w *AtomicWriter) createTemp(dir, base string) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		f, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, markerPerm)
		if err == nil {
			return f, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func (w *AtomicWriter) discardTemp(f File, path string) error {
	var closeErr error
	if err := f.Close(); err != nil {
		closeErr = fmt.Errorf("close temp file %q: %w", path, err)
	}

	return errors.Join(closeErr, w.removeTemp(path))
}

func (w *AtomicWriter) removeTemp(path string) error {
	if err := w.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %q: %w", path, err)
	}

	return nil
}

func (w *AtomicWriter) syncDir(dir string) error {
	d, err := w.fs.Open(dir)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dir, err))
	}

	syncErr := d.Sync()

	closeErr := d.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close dir %q: %w", dir, closeErr)
	}

	if syncErr != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("%q: %w", dir, syncErr), closeErr)
	}

	if closeErr != nil {
		return errors.Join(ErrAtomicWriteDirSync, closeErr)
	}

	return nil
}
