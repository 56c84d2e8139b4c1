package main

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/logkv/kv/shs"
)

// benchConfig holds the bench subcommand's own flags: run counts in, a
// markdown report out.
type benchConfig struct {
	counts []int
	warmup int
}

// BenchResult holds one operation's timing across one dataset size.
type BenchResult struct {
	Op       string
	Count    int
	Total    time.Duration
	PerOpNs  float64
	OpsPerUs float64
}

func newBenchCommand() *Command {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	configPath, overrides, overriddenFn := commonFlags(fs)

	countsStr := fs.String("counts", "1000,100000", "comma-separated list of key counts to benchmark")
	bc := &benchConfig{}
	fs.IntVar(&bc.warmup, "warmup", 1, "number of warmup iterations per dataset size, discarded from the report")

	return &Command{
		Name:  "bench",
		Short: "benchmark put/get/delete/compact throughput against a scratch store",
		Flags: fs,
		Exec: func(ctx context.Context, _ []string) error {
			counts, err := parseCounts(*countsStr)
			if err != nil {
				return err
			}

			bc.counts = counts

			cfgOverrides := *overrides
			if cfgOverrides.BasePath == "" {
				cfgOverrides.BasePath = mustTempBasePath()
			}

			store, _, err := openStore(*configPath, cfgOverrides, mergeOverridden(overriddenFn(), "base_path"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			results, err := runBench(ctx, store, bc)
			if err != nil {
				return err
			}

			fmt.Print(renderReport(results))

			return nil
		},
	}
}

func mergeOverridden(m map[string]bool, key string) map[string]bool {
	m[key] = true
	return m
}

func mustTempBasePath() string {
	dir, err := os.MkdirTemp("", "kvtool-bench-*")
	if err != nil {
		panic(err)
	}

	return dir + "/bench"
}

func parseCounts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	counts := make([]int, 0, len(parts))

	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bench: invalid -counts entry %q: %w", p, err)
		}

		counts = append(counts, n)
	}

	return counts, nil
}

func runBench(ctx context.Context, store *shs.Store[string, string], bc *benchConfig) ([]BenchResult, error) {
	var results []BenchResult

	for _, count := range bc.counts {
		for range bc.warmup {
			if err := benchPut(ctx, store, count); err != nil {
				return nil, err
			}
		}

		putResult, err := timeOp("put", count, func() error { return benchPut(ctx, store, count) })
		if err != nil {
			return nil, err
		}

		getResult, err := timeOp("get", count, func() error { return benchGet(store, count) })
		if err != nil {
			return nil, err
		}

		compactResult, err := timeOp("compact", count, func() error { return store.CompactAll(ctx) })
		if err != nil {
			return nil, err
		}

		deleteResult, err := timeOp("delete", count, func() error { return benchDelete(ctx, store, count) })
		if err != nil {
			return nil, err
		}

		results = append(results, putResult, getResult, compactResult, deleteResult)
	}

	return results, nil
}

func timeOp(name string, count int, fn func() error) (BenchResult, error) {
	start := time.Now()

	if err := fn(); err != nil {
		return BenchResult{}, fmt.Errorf("bench: %s (n=%d): %w", name, count, err)
	}

	elapsed := time.Since(start)

	perOp := float64(elapsed.Nanoseconds())
	if count > 0 {
		perOp /= float64(count)
	}

	return BenchResult{
		Op:       name,
		Count:    count,
		Total:    elapsed,
		PerOpNs:  perOp,
		OpsPerUs: 1000 / perOp,
	}, nil
}

func benchPut(ctx context.Context, store *shs.Store[string, string], count int) error {
	return store.PutBatch(ctx, benchPairs(count), false)
}

func benchGet(store *shs.Store[string, string], count int) error {
	for i := range count {
		if _, err := store.Get(benchKey(i)); err != nil {
			return err
		}
	}

	return nil
}

func benchDelete(ctx context.Context, store *shs.Store[string, string], count int) error {
	return store.DeleteBatch(ctx, benchKeys(count), false)
}

func benchKey(i int) string {
	return fmt.Sprintf("bench-key-%012d", i)
}

func benchPairs(count int) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for i := range count {
			if !yield(benchKey(i), "bench-value") {
				return
			}
		}
	}
}

func benchKeys(count int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := range count {
			if !yield(benchKey(i)) {
				return
			}
		}
	}
}

func renderReport(results []BenchResult) string {
	var report strings.Builder

	report.WriteString("## kvtool bench\n\n")
	report.WriteString("| op | n | total | ns/op | ops/us |\n")
	report.WriteString("|---|---|---|---|---|\n")

	for _, r := range results {
		report.WriteString(fmt.Sprintf("| %s | %d | %s | %.1f | %.2f |\n", r.Op, r.Count, r.Total, r.PerOpNs, r.OpsPerUs))
	}

	return report.String()
}
