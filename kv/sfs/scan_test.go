package sfs_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/sfs"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

func TestScanLive_MatchesSnapshot(t *testing.T) {
	t.Parallel()

	s, err := sfs.Open(kvfs.NewReal(), filepath.Join(t.TempDir(), "kv.log"), codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	pairs := make(map[string]string)
	for i := range 50 {
		k := fmt.Sprintf("k%d", i)
		v := fmt.Sprintf("v%d", i)
		pairs[k] = v
		require.NoError(t, s.Put(k, v))
	}

	_, err = s.Delete("k0")
	require.NoError(t, err)
	delete(pairs, "k0")

	scanned := make(map[string]string)

	for pair, err := range s.ScanLive() {
		require.NoError(t, err)
		scanned[pair.Key] = pair.Value
	}

	require.Empty(t, cmp.Diff(pairs, scanned))

	snap, err := s.Snapshot()
	require.NoError(t, err)

	snapped := make(map[string]string, len(snap))
	for _, pair := range snap {
		snapped[pair.Key] = pair.Value
	}

	require.Empty(t, cmp.Diff(pairs, snapped))
}

func TestScanLive_StopsEarlyWhenYieldReturnsFalse(t *testing.T) {
	t.Parallel()

	s, err := sfs.Open(kvfs.NewReal(), filepath.Join(t.TempDir(), "kv.log"), codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	for i := range 10 {
		require.NoError(t, s.Put(fmt.Sprintf("k%d", i), "v"))
	}

	count := 0

	for range s.ScanLive() {
		count++

		if count == 3 {
			break
		}
	}

	require.Equal(t, 3, count)
}

func TestScanLive_SnapshotTakenEagerly(t *testing.T) {
	t.Parallel()

	s, err := sfs.Open(kvfs.NewReal(), filepath.Join(t.TempDir(), "kv.log"), codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put("a", "1"))

	seen := make(map[string]string)

	for pair, err := range s.ScanLive() {
		require.NoError(t, err)
		seen[pair.Key] = pair.Value

		// A put that happens mid-iteration is not required to appear,
		// since the index snapshot was taken when iteration began.
		require.NoError(t, s.Put("b", "2"))
	}

	require.Contains(t, seen, "a")
}

func TestPutBatch_ThenScanLive_SeesAllEntries(t *testing.T) {
	t.Parallel()

	s, err := sfs.Open(kvfs.NewReal(), filepath.Join(t.TempDir(), "kv.log"), codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	pairs := map[string]string{"a": "1", "b": "2", "c": "3"}
	require.NoError(t, s.PutBatch(context.Background(), seqOf(pairs), true))

	count := 0

	for pair, err := range s.ScanLive() {
		require.NoError(t, err)
		require.Equal(t, pairs[pair.Key], pair.Value)

		count++
	}

	require.Equal(t, len(pairs), count)
}
