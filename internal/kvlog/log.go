// Package kvlog provides structured logging for the storage engine using
// zerolog. It mirrors the wrap-zerolog-behind-a-small-facade shape used
// elsewhere in the corpus: a package-level logger, an Init for configuring
// output, and WithComponent for tagging child loggers.
//
// The engine never logs on the hot Get path. It logs recovery truncation,
// compaction start/end, and shard opens, all at Debug or Warn.
package kvlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger. It is disabled (discards everything)
// until Init is called, so importing this package has no side effects for
// callers who never configure it.
var Logger zerolog.Logger = zerolog.New(io.Discard)

// Level mirrors the handful of severities the engine emits.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call more than once; the last
// call wins.
func Init(cfg Config) {
	var level zerolog.Level

	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	case InfoLevel, "":
		level = zerolog.InfoLevel
	default:
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output}).Level(level).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with a component field, e.g.
// "sfs" or "shs".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithShard returns a child logger tagged with a shard index, for use by SHS.
func WithShard(logger zerolog.Logger, shard int) zerolog.Logger {
	return logger.With().Int("shard", shard).Logger()
}
