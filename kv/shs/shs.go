// Package shs implements the sharded store: a thin facade over N
// independent single-file stores (see kv/sfs), routing each key to
// shard = hash64(key) mod N and fanning batch operations out across
// shards concurrently.
package shs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/internal/kvlog"
	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/sfs"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

// Store is a facade over ShardCount independent [sfs.Store] instances,
// one per shard file at "<base_path>.shard{i:02d}.log". Every key lives
// in exactly one shard, determined by hash64(key) mod ShardCount; shards
// are otherwise fully independent, with no cross-shard atomicity.
type Store[K any, V any] struct {
	basePath string
	keyCodec codec.KeyCodec[K]
	shards   []*sfs.Store[K, V]
}

// Open opens (creating if absent) shardCount independent SFS instances
// rooted at basePath. If a shard-count marker already exists at basePath
// (written by a prior Open) and records a different count, Open fails
// with [kverrors.ErrShardCount] rather than silently misrouting keys.
// Changing shard count on a pre-existing base path is unsupported —
// callers must rehash offline — and the marker makes the mistake loud
// instead of silent.
func Open[K any, V any](fsys kvfs.FS, basePath string, shardCount int, keyCodec codec.KeyCodec[K], valueCodec codec.ValueCodec[V], writeThrough bool) (*Store[K, V], error) {
	if shardCount <= 0 {
		return nil, fmt.Errorf("shs: open %s: shard count must be positive, got %d: %w", basePath, shardCount, kverrors.ErrUnsupported)
	}

	if keyCodec == nil {
		var err error

		keyCodec, err = codec.DefaultKeyCodec[K]()
		if err != nil {
			return nil, fmt.Errorf("shs: open %s: %w", basePath, err)
		}
	}

	if valueCodec == nil {
		var err error

		valueCodec, err = codec.DefaultValueCodec[V]()
		if err != nil {
			return nil, fmt.Errorf("shs: open %s: %w", basePath, err)
		}
	}

	if err := checkShardMarker(fsys, basePath, shardCount); err != nil {
		return nil, err
	}

	shards := make([]*sfs.Store[K, V], 0, shardCount)

	for i := range shardCount {
		path := shardPath(basePath, i)

		shard, err := sfs.Open(fsys, path, keyCodec, valueCodec, writeThrough)
		if err != nil {
			for _, opened := range shards {
				_ = opened.Close()
			}

			return nil, fmt.Errorf("shs: open shard %d of %s: %w", i, basePath, err)
		}

		shardLogger := kvlog.WithShard(kvlog.WithComponent("shs"), i)
		shardLogger.Debug().Str("path", path).Msg("shard opened")

		shards = append(shards, shard)
	}

	openLogger := kvlog.WithComponent("shs")
	openLogger.Debug().Str("base_path", basePath).Int("shards", shardCount).Msg("opened")

	return &Store[K, V]{basePath: basePath, keyCodec: keyCodec, shards: shards}, nil
}

// ShardCount returns the number of shards this store was opened with.
func (s *Store[K, V]) ShardCount() int {
	return len(s.shards)
}

// shardOf returns the shard index a key is routed to: hash64(key) mod N.
func (s *Store[K, V]) shardOf(key K) int {
	return int(s.keyCodec.Hash64(key) % uint64(len(s.shards)))
}

// Get returns the current value for key, routed to its shard.
func (s *Store[K, V]) Get(key K) (V, error) {
	return s.shards[s.shardOf(key)].Get(key)
}

// Put upserts one key-value pair on its shard.
func (s *Store[K, V]) Put(key K, value V) error {
	return s.shards[s.shardOf(key)].Put(key, value)
}

// Delete removes key from its shard if live.
func (s *Store[K, V]) Delete(key K) (bool, error) {
	return s.shards[s.shardOf(key)].Delete(key)
}

// Flush durably syncs every shard.
func (s *Store[K, V]) Flush() error {
	return s.fanOut(func(shard *sfs.Store[K, V]) error {
		return shard.Flush()
	})
}

// Close releases every shard's resources. It attempts to close every
// shard even if one fails, joining all errors together.
func (s *Store[K, V]) Close() error {
	var errs []error

	for _, shard := range s.shards {
		if err := shard.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CompactAll compacts every shard concurrently. ctx is observed by each
// shard's compaction between records; shards whose rewrite already
// completed before cancellation keep their compacted file.
func (s *Store[K, V]) CompactAll(ctx context.Context) error {
	return s.fanOut(func(shard *sfs.Store[K, V]) error {
		return shard.Compact(ctx)
	})
}

// Stats aggregates per-shard stats into a single totals view.
type Stats struct {
	LiveKeys  int
	FileBytes int64
	PerShard  []sfs.Stats
}

// Stats returns aggregate and per-shard statistics.
func (s *Store[K, V]) Stats() Stats {
	out := Stats{PerShard: make([]sfs.Stats, len(s.shards))}

	for i, shard := range s.shards {
		st := shard.Stats()
		out.PerShard[i] = st
		out.LiveKeys += st.LiveKeys
		out.FileBytes += st.FileBytes
	}

	return out
}

// PutBatch groups pairs by shard and dispatches one sub-batch per shard
// concurrently, waiting for all to complete before returning.
func (s *Store[K, V]) PutBatch(ctx context.Context, pairs iter.Seq2[K, V], flush bool) error {
	grouped := make([][]kvPair[K, V], len(s.shards))

	for key, value := range pairs {
		idx := s.shardOf(key)
		grouped[idx] = append(grouped[idx], kvPair[K, V]{key, value})
	}

	return s.fanOutIndexed(func(i int, shard *sfs.Store[K, V]) error {
		if len(grouped[i]) == 0 {
			return nil
		}

		return shard.PutBatch(ctx, slicePairs(grouped[i]), flush)
	})
}

// DeleteBatch groups keys by shard and dispatches one sub-batch per shard
// concurrently, waiting for all to complete before returning.
func (s *Store[K, V]) DeleteBatch(ctx context.Context, keys iter.Seq[K], flush bool) error {
	grouped := make([][]K, len(s.shards))

	for key := range keys {
		idx := s.shardOf(key)
		grouped[idx] = append(grouped[idx], key)
	}

	return s.fanOutIndexed(func(i int, shard *sfs.Store[K, V]) error {
		if len(grouped[i]) == 0 {
			return nil
		}

		return shard.DeleteBatch(ctx, sliceKeys(grouped[i]), flush)
	})
}

// ScanAllLive concatenates every shard's live scan, with no cross-shard
// ordering guarantee.
func (s *Store[K, V]) ScanAllLive() iter.Seq2[sfs.Pair[K, V], error] {
	return func(yield func(sfs.Pair[K, V], error) bool) {
		for _, shard := range s.shards {
			for pair, err := range shard.ScanLive() {
				if !yield(pair, err) {
					return
				}

				if err != nil {
					return
				}
			}
		}
	}
}

// SnapshotAll materialises every shard's live set into one map.
func (s *Store[K, V]) SnapshotAll() (map[string]sfs.Pair[K, V], error) {
	result := make(map[string]sfs.Pair[K, V])

	for _, shard := range s.shards {
		snap, err := shard.Snapshot()
		if err != nil {
			return nil, err
		}

		for k, v := range snap {
			result[k] = v
		}
	}

	return result, nil
}

type kvPair[K any, V any] struct {
	key   K
	value V
}

func slicePairs[K any, V any](pairs []kvPair[K, V]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, p := range pairs {
			if !yield(p.key, p.value) {
				return
			}
		}
	}
}

func sliceKeys[K any](keys []K) iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}

// fanOut runs fn against every shard concurrently and joins any errors.
func (s *Store[K, V]) fanOut(fn func(*sfs.Store[K, V]) error) error {
	return s.fanOutIndexed(func(_ int, shard *sfs.Store[K, V]) error {
		return fn(shard)
	})
}

// fanOutIndexed runs fn against every (index, shard) pair concurrently and
// joins any errors.
func (s *Store[K, V]) fanOutIndexed(fn func(int, *sfs.Store[K, V]) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i, shard := range s.shards {
		wg.Add(1)

		go func(i int, shard *sfs.Store[K, V]) {
			defer wg.Done()

			if err := fn(i, shard); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i, shard)
	}

	wg.Wait()

	return errors.Join(errs...)
}
