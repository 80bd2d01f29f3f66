// Package logger builds the process slog.Logger and adapts it to the
// interfaces of embedded libraries.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// TimeFormat is the timestamp layout used by every handler.
const TimeFormat = "2006-01-02 15:04:05.000"

// Config represents logger configuration.
// Level is a string like "debug", "info", "error";
// Format is "text" or "json".
type Config struct {
	Level  string
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// ParseLevel converts a string to slog.Level, defaulting to Info on error.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New creates a slog.Logger based on Config.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(TimeFormat))
			}
			return a
		},
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
