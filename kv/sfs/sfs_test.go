package sfs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/record"
	"github.com/calvinalkan/logkv/kv/sfs"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

func openTestStore(t *testing.T, path string, writeThrough bool) *sfs.Store[string, string] {
	t.Helper()

	s, err := sfs.Open(kvfs.NewReal(), path, codec.StringKeyCodec{}, codec.StringValueCodec{}, writeThrough)
	require.NoError(t, err)

	return s
}

func TestPutDeleteFlush_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")

	s := openTestStore(t, path, false)

	require.NoError(t, s.Put("alpha", "one"))
	require.NoError(t, s.Put("beta", "two"))
	require.NoError(t, s.Put("alpha", "ONE"))

	deleted, err := s.Delete("beta")
	require.NoError(t, err)
	require.True(t, deleted)

	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path, false)
	defer func() { _ = reopened.Close() }()

	value, err := reopened.Get("alpha")
	require.NoError(t, err)
	require.Equal(t, "ONE", value)

	_, err = reopened.Get("beta")
	require.ErrorIs(t, err, kverrors.ErrNotFound)

	require.Equal(t, 1, reopened.Stats().LiveKeys)

	var expectedBytes int64

	for _, rec := range []record.Record{
		{Op: record.OpPut, Key: []byte("alpha"), Value: []byte("one")},
		{Op: record.OpPut, Key: []byte("beta"), Value: []byte("two")},
		{Op: record.OpPut, Key: []byte("alpha"), Value: []byte("ONE")},
		{Op: record.OpDel, Key: []byte("beta")},
	} {
		expectedBytes += int64(rec.EncodedLen())
	}

	require.Equal(t, expectedBytes, reopened.Stats().FileBytes, "the log keeps all four records until compaction")
}

func TestPut_Idempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("k", "v"))
	require.NoError(t, s.Put("k", "v"))

	value, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", value)
}

func TestDelete_OfAbsentKey_ReturnsFalseAndWritesNothing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	defer func() { _ = s.Close() }()

	deleted, err := s.Delete("nope")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, int64(0), s.Stats().FileBytes)
}

func TestDelete_Twice_SecondReturnsFalseAndWritesNoNewRecord(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("k", "v"))
	deleted, err := s.Delete("k")
	require.NoError(t, err)
	require.True(t, deleted)

	sizeAfterFirstDelete := s.Stats().FileBytes

	deleted, err = s.Delete("k")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, sizeAfterFirstDelete, s.Stats().FileBytes)
}

func TestGet_AfterDelete_IsAbsentUntilRePut(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("k", "v1"))

	_, err := s.Delete("k")
	require.NoError(t, err)

	_, err = s.Get("k")
	require.ErrorIs(t, err, kverrors.ErrNotFound)

	require.NoError(t, s.Put("k", "v2"))

	value, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v2", value)
}

func TestEmptyValue_RoundTripsAndDiffersFromTombstone(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("k", ""))

	value, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.Equal(t, 1, s.Stats().LiveKeys)
}

func TestZeroLengthKey_IsLegal(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("", "root-value"))

	value, err := s.Get("")
	require.NoError(t, err)
	require.Equal(t, "root-value", value)
}

func TestOpen_EmptyFile_YieldsEmptyLiveSetAndZeroCursor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")

	s := openTestStore(t, path, false)
	defer func() { _ = s.Close() }()

	require.Equal(t, 0, s.Stats().LiveKeys)
	require.Equal(t, int64(0), s.Stats().FileBytes)
}

func TestClose_RejectsFurtherOperations(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "kv.log"), false)
	require.NoError(t, s.Close())

	err := s.Put("k", "v")
	require.ErrorIs(t, err, kverrors.ErrClosed)

	_, err = s.Get("k")
	require.ErrorIs(t, err, kverrors.ErrClosed)
}

func TestLargeValue_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")
	s := openTestStore(t, path, false)

	big := make([]byte, 1<<20)
	for i := range big {
		big[i] = byte(i)
	}

	require.NoError(t, s.Put("k", string(big)))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path, false)
	defer func() { _ = reopened.Close() }()

	value, err := reopened.Get("k")
	require.NoError(t, err)
	require.Equal(t, string(big), value)
}

func TestOpen_NilCodec_FallsBackToDefaultForStringKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")

	s, err := sfs.Open[string, string](kvfs.NewReal(), path, nil, nil, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("k", "v"))

	value, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", value)
}

func TestOpen_NilCodec_FailsForKeyTypeWithoutDefault(t *testing.T) {
	t.Parallel()

	type exotic struct{ A, B string }

	path := filepath.Join(t.TempDir(), "kv.log")

	_, err := sfs.Open[exotic, string](kvfs.NewReal(), path, nil, codec.StringValueCodec{}, false)
	require.ErrorIs(t, err, kverrors.ErrUnsupported)
}

// sanity check that record framing constants used in tests stay in sync.
func TestMinRecordSizeIsPositive(t *testing.T) {
	t.Parallel()

	require.Positive(t, record.MinSize)
}

// Once the index and the file have drifted apart (here, by truncating the
// file out from under a live index entry), the store is fatal and every
// subsequent operation fails fast instead of risking a short read.
func TestInvariantViolation_PoisonsStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")
	s := openTestStore(t, path, false)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("k", "a value long enough to be truncated"))

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, file.Truncate(4))
	require.NoError(t, file.Close())

	_, err = s.Get("k")
	require.ErrorIs(t, err, kverrors.ErrInvariant)

	_, err = s.Get("k")
	require.ErrorIs(t, err, kverrors.ErrInvariant, "store must stay poisoned across calls")

	require.ErrorIs(t, s.Put("other", "x"), kverrors.ErrInvariant)

	_, err = s.Delete("k")
	require.ErrorIs(t, err, kverrors.ErrInvariant)

	require.ErrorIs(t, s.Flush(), kverrors.ErrInvariant)
	require.ErrorIs(t, s.Compact(context.Background()), kverrors.ErrInvariant)
}
