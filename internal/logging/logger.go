// Package logging configures the single process-wide zerolog logger and
// hands out tagged children to components, the way internal/shared/utils
// InitLogger configures zerolog's global logger for every subsystem.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	Level       string // debug, info, warn, error
	Environment string // "production" enables JSON output
}

// New builds the process-wide logger. Call once at startup and pass the
// returned logger (or children of it, via Component) into every component
// constructor.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writer zerolog.ConsoleWriter
	if opts.Environment != "production" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if opts.Environment == "production" {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name,
// mirroring the teacher's "[WHATSAPP]"/"[MCPAdapter]" prefix convention
// but as a structured field instead of a string prefix.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
