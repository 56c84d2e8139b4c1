package main

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

func newCompactCommand() *Command {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)
	configPath, overrides, overriddenFn := commonFlags(fs)

	return &Command{
		Name:  "compact",
		Short: "rewrite every shard, dropping tombstones and overwritten records",
		Flags: fs,
		Exec: func(ctx context.Context, _ []string) error {
			store, _, err := openStore(*configPath, *overrides, overriddenFn())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			before := store.Stats()

			if err := store.CompactAll(ctx); err != nil {
				return fmt.Errorf("compact: %w", err)
			}

			after := store.Stats()

			fmt.Printf("file_bytes: %d -> %d\n", before.FileBytes, after.FileBytes)
			fmt.Printf("live_keys:  %d -> %d\n", before.LiveKeys, after.LiveKeys)

			return nil
		},
	}
}
