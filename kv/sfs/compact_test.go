package sfs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/sfs"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

func TestCompact_DropsTombstonesAndShrinksFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")

	s, err := sfs.Open(kvfs.NewReal(), path, codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	letters := "abcdefghijklmnopqrstuvwxyz"

	for _, r := range letters {
		require.NoError(t, s.Put(string(r), "v"))
	}

	sizeBeforeCompact := s.Stats().FileBytes

	for i, r := range letters {
		if i%2 == 0 {
			_, err := s.Delete(string(r))
			require.NoError(t, err)
		}
	}

	require.NoError(t, s.Compact(context.Background()))

	require.Equal(t, 13, s.Stats().LiveKeys)
	require.Less(t, s.Stats().FileBytes, sizeBeforeCompact)

	for i, r := range letters {
		value, err := s.Get(string(r))
		if i%2 == 0 {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
			require.Equal(t, "v", value)
		}
	}

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 13)
}

func TestCompact_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.log")

	s, err := sfs.Open(kvfs.NewReal(), path, codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)

	require.NoError(t, s.Put("a", "1"))
	require.NoError(t, s.Put("b", "2"))

	_, err = s.Delete("a")
	require.NoError(t, err)

	require.NoError(t, s.Compact(context.Background()))
	require.NoError(t, s.Close())

	reopened, err := sfs.Open(kvfs.NewReal(), path, codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	require.Equal(t, 1, reopened.Stats().LiveKeys)

	value, err := reopened.Get("b")
	require.NoError(t, err)
	require.Equal(t, "2", value)

	_, err = reopened.Get("a")
	require.Error(t, err)
}

// A cancelled compaction abandons the rewrite before the swap: the live
// file and the live set are untouched, and a later compaction with a live
// context still succeeds.
func TestCompact_RespectsCancelledContext(t *testing.T) {
	t.Parallel()

	s, err := sfs.Open(kvfs.NewReal(), filepath.Join(t.TempDir(), "kv.log"), codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("a", "1"))
	require.NoError(t, s.Put("b", "2"))

	_, err = s.Delete("a")
	require.NoError(t, err)

	sizeBefore := s.Stats().FileBytes

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Compact(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, sizeBefore, s.Stats().FileBytes, "a cancelled compaction must leave the live file untouched")

	value, err := s.Get("b")
	require.NoError(t, err)
	require.Equal(t, "2", value)

	require.NoError(t, s.Compact(context.Background()))
	require.Equal(t, 1, s.Stats().LiveKeys)
}

func TestCompact_OnEmptyStore(t *testing.T) {
	t.Parallel()

	s, err := sfs.Open(kvfs.NewReal(), filepath.Join(t.TempDir(), "kv.log"), codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Compact(context.Background()))
	require.Equal(t, int64(0), s.Stats().FileBytes)
}
