// Package kverrors defines the sentinel errors surfaced by the storage
// engine, so callers can branch with [errors.Is] instead of string matching.
package kverrors

import "errors"

var (
	// ErrNotFound is returned by Get for an absent or tombstoned key.
	ErrNotFound = errors.New("kv: key not found")

	// ErrIntegrity is returned when a log record's framing is inconsistent —
	// the prefix and suffix payload lengths disagree, or the declared
	// key/value lengths do not add up to the declared payload length — at a
	// position that is not a clean
	// trailing partial record. Recovery truncates trailing partial records
	// silently; this error is reserved for corruption discovered mid-file.
	ErrIntegrity = errors.New("kv: log integrity error")

	// ErrIO wraps an underlying filesystem failure: a short read or write,
	// a failed fsync, or a failed rename.
	ErrIO = errors.New("kv: io error")

	// ErrInvariant indicates the index and the log file have drifted out of
	// sync (for example, a short read at a recorded value offset). It is
	// fatal for the affected store instance.
	ErrInvariant = errors.New("kv: invariant violation")

	// ErrUnsupported is returned at open time when no codec was supplied and
	// none can be inferred.
	ErrUnsupported = errors.New("kv: unsupported")

	// ErrClosed is returned by any operation attempted after Close.
	ErrClosed = errors.New("kv: store is closed")

	// ErrShardCount is returned by SHS.Open when the requested shard count
	// does not match the shard count recorded at a prior open of the same
	// base path.
	ErrShardCount = errors.New("kv: shard count mismatch")
)
