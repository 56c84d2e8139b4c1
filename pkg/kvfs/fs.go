// Package kvfs is the filesystem seam the storage engine reads and
// writes through. It exposes exactly the operations the engine needs —
// positional reads and writes, fsync, truncate, rename — so tests can
// substitute a fake filesystem without carrying a full os.File surface.
//
// The engine reads records with [File.ReadAt] rather than a shared
// stream position so concurrent readers never contend with an appender's
// cursor.
package kvfs

import (
	"io"
	"os"
)

// File is one open log (or marker) file.
//
// It is satisfied by [os.File]. Implementations must be safe for
// concurrent use by multiple goroutines, including [File.ReadAt] calls
// overlapping a [File.WriteAt] — positional reads must never be
// disturbed by another goroutine's writes past them.
type File interface {
	io.Writer
	io.Closer
	io.ReaderAt
	io.WriterAt

	// Stat returns the file's [os.FileInfo]. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to stable storage. See [os.File.Sync].
	Sync() error

	// Truncate changes the size of the file. See [os.File.Truncate].
	Truncate(size int64) error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS is the set of path-level operations the engine performs.
//
// Paths use OS semantics (like the os package and path/filepath), not
// the slash-separated paths of io/fs. [Real] is the production
// implementation; implementations must be safe for concurrent use.
type FS interface {
	// Open opens a file (or directory, for directory fsync) read-only.
	// See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with the given flags and permissions. See
	// [os.OpenFile]. The engine opens its log files with
	// os.O_RDWR|os.O_CREATE.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	// Returns an error satisfying [os.ErrNotExist] if the file is absent.
	ReadFile(path string) ([]byte, error)

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error

	// Rename moves oldpath to newpath, atomically when both are on the
	// same filesystem. See [os.Rename]. Compaction's swap and the atomic
	// writer both depend on this atomicity.
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
