package shs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

// markerSuffix names the small file recording the shard count a base path
// was opened with. Shard count is a property of how the store was opened,
// not of the log files themselves, so the marker is a supplementary guard
// ensuring a mismatched reopen fails loudly instead of silently
// misrouting keys.
const markerSuffix = ".shardinfo"

// shardPath returns the path of shard i rooted at basePath:
// "<base_path>.shard{i:02d}.log", always zero-padded to two
// decimal digits regardless of total shard count.
func shardPath(basePath string, i int) string {
	return fmt.Sprintf("%s.shard%02d.log", basePath, i)
}

func markerPath(basePath string) string {
	return basePath + markerSuffix
}

// checkShardMarker reads any existing shard-count marker at basePath and
// fails with [kverrors.ErrShardCount] if it disagrees with shardCount.
// If no marker exists yet, one is written recording shardCount.
func checkShardMarker(fsys kvfs.FS, basePath string, shardCount int) error {
	path := markerPath(basePath)

	existing, err := fsys.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("shs: read shard marker %s: %w: %w", path, kverrors.ErrIO, err)
		}

		return writeShardMarker(fsys, path, shardCount)
	}

	recorded, parseErr := strconv.Atoi(strings.TrimSpace(string(existing)))
	if parseErr != nil {
		return fmt.Errorf("shs: shard marker %s is unreadable: %w: %w", path, kverrors.ErrIntegrity, parseErr)
	}

	if recorded != shardCount {
		return fmt.Errorf("shs: %s was created with %d shards, opened with %d: %w", basePath, recorded, shardCount, kverrors.ErrShardCount)
	}

	return nil
}

// writeShardMarker writes the marker via [kvfs.AtomicWriter]: a crash
// mid-write must never leave a half-written count behind, or every
// subsequent open would fail parsing it.
func writeShardMarker(fsys kvfs.FS, path string, shardCount int) error {
	content := strconv.Itoa(shardCount)

	writer := kvfs.NewAtomicWriter(fsys)
	if err := writer.Write(path, strings.NewReader(content)); err != nil {
		return fmt.Errorf("shs: write shard marker %s: %w: %w", path, kverrors.ErrIO, err)
	}

	return nil
}
