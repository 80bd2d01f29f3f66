package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Badger adapts a slog.Logger to badger.Logger.
//
// Badger logs at Info for routine compaction and value log events, which is
// noisy next to the monitor's own output, so Info is demoted to Debug.
type Badger struct {
	log *slog.Logger
}

// NewBadger returns a badger.Logger writing to log.
func NewBadger(log *slog.Logger) *Badger {
	return &Badger{log: log.With("component", "badger")}
}

func (b *Badger) Errorf(format string, args ...interface{}) {
	b.logf(slog.LevelError, format, args...)
}

func (b *Badger) Warningf(format string, args ...interface{}) {
	b.logf(slog.LevelWarn, format, args...)
}

func (b *Badger) Infof(format string, args ...interface{}) {
	b.logf(slog.LevelDebug, format, args...)
}

func (b *Badger) Debugf(format string, args ...interface{}) {
	b.logf(slog.LevelDebug, format, args...)
}

func (b *Badger) logf(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !b.log.Enabled(ctx, level) {
		return
	}
	b.log.Log(ctx, level, strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}
