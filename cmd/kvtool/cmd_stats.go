package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

func newStatsCommand() *Command {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	configPath, overrides, overriddenFn := commonFlags(fs)

	return &Command{
		Name:  "stats",
		Short: "report live key counts and file sizes per shard",
		Flags: fs,
		Exec: func(_ context.Context, _ []string) error {
			store, cfg, err := openStore(*configPath, *overrides, overriddenFn())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats := store.Stats()

			fmt.Printf("base_path:   %s\n", cfg.BasePath)
			fmt.Printf("shards:      %d\n", store.ShardCount())
			fmt.Printf("live_keys:   %d\n", stats.LiveKeys)
			fmt.Printf("file_bytes:  %d\n", stats.FileBytes)
			fmt.Println()

			for i, shard := range stats.PerShard {
				fmt.Printf("  shard %02d: %8d keys, %10d bytes\n", i, shard.LiveKeys, shard.FileBytes)
			}

			return nil
		},
	}
}
