// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. Console output when STAGE is
// "local", JSON otherwise.
func New(level zerolog.Level) zerolog.Logger {
	return NewWithOutput(level, os.Stdout)
}

// NewWithOutput is New with an explicit writer. Useful for testing.
func NewWithOutput(level zerolog.Level, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(os.Getenv("STAGE"), "local") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().
			Str("app", "harvest").
			Timestamp().
			Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		logger = zerolog.New(out).
			With().
			Timestamp().
			Str("app", "harvest").
			Logger()
	}

	return logger.Level(level)
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
