// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New returns a logger at the given level. Pretty output goes through
// zerolog's console writer, otherwise JSON lines are written to stdout.
func New(level string, pretty bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorFieldName = "err"

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// Component derives a logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// ParseLevel maps a level name to a zerolog level, returning def when unknown.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// CronLogger adapts a zerolog logger to cron.Logger.
type CronLogger struct {
	Log zerolog.Logger
}

// Info logs routine cron messages at debug level.
func (c CronLogger) Info(msg string, keysAndValues ...any) {
	c.Log.Debug().Fields(keysAndValues).Msg(msg)
}

// Error logs cron failures, including recovered panics.
func (c CronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.Log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
