// Package dlog provides the process-wide structured logger used by every
// doxstorr component. A single zerolog.Logger is configured once at
// program start (Init); components never reach for a global — they
// receive a *zerolog.Logger handle at construction and log through it.
package dlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level names a configurable log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the root logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init builds and returns the root logger for the process. Callers pass
// the returned handle (or a .With()-derived child) into component
// constructors; dlog holds no package-level mutable logger.
func Init(cfg Config) zerolog.Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component's
// name, the pattern every subcomponent uses to identify its log lines.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Noop returns a logger that discards all output, used by tests and by
// callers that have not configured logging.
func Noop() zerolog.Logger {
	return zerolog.New(io.Discard)
}
