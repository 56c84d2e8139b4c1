// kvshell is an interactive CLI for exploring a sharded key-value store.
//
// Usage:
//
//	kvshell <base-path> [shard-count]   Open (or create) a store
//
// Commands (in REPL):
//
//	put <key> <value...>     Insert or update a value (value is the rest of the line)
//	get <key>                Retrieve a value
//	del <key>                Delete a key
//	scan [limit]             List live keys, optionally capped at limit
//	snapshot                 Materialise the whole live set
//	compact                  Compact every shard
//	stats                    Show live key count and file size per shard
//	flush                    Fsync every shard
//	help                     Show this help
//	exit / quit / q          Exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/logkv/internal/kverrors"
	"github.com/calvinalkan/logkv/kv/codec"
	"github.com/calvinalkan/logkv/kv/shs"
	"github.com/calvinalkan/logkv/pkg/kvfs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "kvshell:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: kvshell <base-path> [shard-count]")
		return errors.New("missing base-path argument")
	}

	basePath := args[0]

	shardCount := 4
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid shard count %q: %w", args[1], err)
		}

		shardCount = n
	}

	store, err := shs.Open(kvfs.NewReal(), basePath, shardCount, codec.StringKeyCodec{}, codec.StringValueCodec{}, false)
	if err != nil {
		return fmt.Errorf("open %s: %w", basePath, err)
	}
	defer func() { _ = store.Close() }()

	repl := &REPL{store: store, basePath: basePath}

	return repl.Run()
}

// REPL is the interactive command loop: a liner-backed shell over the
// key-value engine's operations.
type REPL struct {
	store    *shs.Store[string, string]
	basePath string
	liner    *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".kvshell_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("kvshell - %s (%d shards)\n", r.basePath, r.store.ShardCount())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("kvshell> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "del", "delete":
			r.cmdDelete(args)

		case "scan", "ls", "list":
			r.cmdScan(args)

		case "snapshot":
			r.cmdSnapshot()

		case "compact":
			r.cmdCompact()

		case "stats":
			r.cmdStats()

		case "flush":
			r.cmdFlush()

		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"put", "get", "del", "delete", "scan", "snapshot", "compact", "stats", "flush", "help", "exit", "quit"}

	var matches []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}

	return matches
}

func (r *REPL) printHelp() {
	fmt.Println(`commands:
  put <key> <value...>   insert or update a value
  get <key>              retrieve a value
  del <key>              delete a key
  scan [limit]           list live keys
  snapshot               materialise the whole live set
  compact                compact every shard
  stats                  show live key count and file size per shard
  flush                  fsync every shard
  exit / quit / q        exit`)
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <key> <value...>")
		return
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := r.store.Put(key, value); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <key>")
		return
	}

	value, err := r.store.Get(args[0])
	if err != nil {
		if errors.Is(err, kverrors.ErrNotFound) {
			fmt.Println("(not found)")
			return
		}

		fmt.Println("error:", err)
		return
	}

	fmt.Println(value)
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <key>")
		return
	}

	deleted, err := r.store.Delete(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if deleted {
		fmt.Println("ok")
	} else {
		fmt.Println("(not found)")
	}
}

func (r *REPL) cmdScan(args []string) {
	limit := -1

	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("usage: scan [limit]")
			return
		}

		limit = n
	}

	count := 0

	for pair, err := range r.store.ScanAllLive() {
		if err != nil {
			fmt.Println("error:", err)
			return
		}

		if limit >= 0 && count >= limit {
			break
		}

		fmt.Printf("%s = %s\n", pair.Key, pair.Value)

		count++
	}
}

func (r *REPL) cmdSnapshot() {
	snap, err := r.store.SnapshotAll()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, pair := range snap {
		fmt.Printf("%s = %s\n", pair.Key, pair.Value)
	}

	fmt.Printf("(%d keys)\n", len(snap))
}

func (r *REPL) cmdCompact() {
	if err := r.store.CompactAll(context.Background()); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdStats() {
	stats := r.store.Stats()

	fmt.Printf("live_keys: %d\n", stats.LiveKeys)
	fmt.Printf("file_bytes: %d\n", stats.FileBytes)

	for i, shard := range stats.PerShard {
		fmt.Printf("  shard %02d: %8d keys, %10d bytes\n", i, shard.LiveKeys, shard.FileBytes)
	}
}

func (r *REPL) cmdFlush() {
	if err := r.store.Flush(); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}
