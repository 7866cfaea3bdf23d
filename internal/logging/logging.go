// Package logging builds the participant's structured logger: JSON output
// for production, a console writer for local development, per SPEC_FULL.md's
// ambient logging section.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors the subset of zerolog levels the participant cares about.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the sink: JSON for log aggregation, pretty for a terminal.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures the root logger.
type Config struct {
	Level       Level
	Format      Format
	DomainID    uint32
	ParticipantID string
}

// New builds the root zerolog.Logger for a participant process, tagging
// every line with the domain and participant identity so multi-participant
// deployments can be filtered in aggregate log storage.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	switch cfg.Level {
	case LevelDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case LevelWarn:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case LevelError:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Uint32("domain_id", cfg.DomainID).
		Str("participant_id", cfg.ParticipantID).
		Logger()

	return logger
}

// LogPanic records a recovered mailbox or worker-pool panic with its stack
// trace before the caller transitions the participant to its failed state.
func LogPanic(logger zerolog.Logger, panicValue any, msg string) {
	logger.Error().
		Interface("panic_value", panicValue).
		Str("stack_trace", string(debug.Stack())).
		Msg(msg)
}
