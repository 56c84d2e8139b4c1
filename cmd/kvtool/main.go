// Command kvtool opens a sharded key-value store and drives maintenance
// and benchmarking operations against it: compaction, stats reporting,
// and a put/get/delete/compact throughput bench.
//
// kvtool operates on string keys and string values. Interactive and
// scripted tool use is textual; typed key codecs (GUID, int64) are
// exercised by the library's own tests and by callers embedding the
// engine directly, not by this CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/logkv/internal/kvlog"
	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/shs"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

// Command is a named subcommand with its own flag set and an Exec func.
type Command struct {
	Name  string
	Short string
	Flags *flag.FlagSet
	Exec  func(ctx context.Context, args []string) error
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	commands := []*Command{
		newBenchCommand(),
		newStatsCommand(),
		newCompactCommand(),
	}

	if len(args) == 0 {
		printUsage(commands)
		return 2
	}

	name := args[0]

	for _, cmd := range commands {
		if cmd.Name != name {
			continue
		}

		if err := cmd.Flags.Parse(args[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}

			fmt.Fprintln(os.Stderr, "kvtool:", err)
			return 2
		}

		if err := cmd.Exec(context.Background(), cmd.Flags.Args()); err != nil {
			fmt.Fprintln(os.Stderr, "kvtool:", err)
			return 1
		}

		return 0
	}

	fmt.Fprintf(os.Stderr, "kvtool: unknown command %q\n\n", name)
	printUsage(commands)

	return 2
}

func printUsage(commands []*Command) {
	fmt.Fprintln(os.Stderr, "usage: kvtool <command> [flags]")
	fmt.Fprintln(os.Stderr, "\ncommands:")

	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", cmd.Name, cmd.Short)
	}
}

// openStore loads config (project file + flag overrides) and opens the
// sharded store it describes.
func openStore(configPath string, overrides Config, overridden map[string]bool) (*shs.Store[string, string], Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, Config{}, fmt.Errorf("kvtool: getwd: %w", err)
	}

	cfg, err := LoadConfig(workDir, configPath, overrides, overridden)
	if err != nil {
		return nil, Config{}, err
	}

	kvlog.Init(kvlog.Config{Level: kvlog.InfoLevel})

	store, err := shs.Open(kvfs.NewReal(), cfg.BasePath, cfg.ShardCount, codec.StringKeyCodec{}, codec.StringValueCodec{}, cfg.WriteThrough)
	if err != nil {
		return nil, Config{}, fmt.Errorf("kvtool: open store at %s: %w", cfg.BasePath, err)
	}

	return store, cfg, nil
}

// commonFlags registers the config-related flags shared by every
// subcommand. The returned overriddenFn must be called after fs.Parse:
// pflag only knows which flags were actually set once parsing has run.
func commonFlags(fs *flag.FlagSet) (configPath *string, overrides *Config, overriddenFn func() map[string]bool) {
	overrides = &Config{}
	configPath = fs.String("config", "", "path to a kvtool config file (default: ./.kvtool.json)")

	fs.StringVar(&overrides.BasePath, "base-path", "", "base path for the store's log files")
	fs.IntVar(&overrides.ShardCount, "shards", 0, "number of shards")
	fs.BoolVar(&overrides.WriteThrough, "write-through", false, "fsync every mutation before it returns")

	overriddenFn = func() map[string]bool {
		overridden := make(map[string]bool)

		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "base-path":
				overridden["base_path"] = true
			case "shards":
				overridden["shard_count"] = true
			case "write-through":
				overridden["write_through"] = true
			}
		})

		return overridden
	}

	return configPath, overrides, overriddenFn
}
