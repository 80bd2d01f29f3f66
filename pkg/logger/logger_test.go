package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Pulse/pkg/logger"
)

// logEntry represents a parsed log entry for testing
type logEntry struct {
	Time   string `json:"time"`
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Method string `json:"method"`
	URI    string `json:"uri"`
	Status int    `json:"status"`
}

func lastEntry(t *testing.T, out string) logEntry {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(out), "\n")

	var entry logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.ParseLevel(tt.in))
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})

	log.Debug("hidden")
	log.Info("shown")

	entry := lastEntry(t, buf.String())
	assert.Equal(t, "shown", entry.Msg)
	assert.Equal(t, "INFO", entry.Level)
	assert.Len(t, entry.Time, len(logger.TimeFormat))
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "text", Output: &buf})

	log.Debug("visible", "k", "v")

	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "k=v")
}

func TestBadgerAdapter(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &buf})
	b := logger.NewBadger(log)

	b.Infof("compaction %d\n", 1)
	assert.Empty(t, buf.String(), "badger info is demoted to debug")

	b.Warningf("value log %s\n", "full")
	entry := lastEntry(t, buf.String())
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "value log full", entry.Msg)

	b.Errorf("boom")
	assert.Equal(t, "ERROR", lastEntry(t, buf.String()).Level)
}

func TestNewMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "INFO"},
		{"rate limited", http.StatusTooManyRequests, "WARN"},
		{"server error", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})

			h := logger.NewMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/metrics?rpc=x", nil)
			h.ServeHTTP(httptest.NewRecorder(), req)

			entry := lastEntry(t, buf.String())
			assert.Equal(t, "HTTP", entry.Msg)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, http.MethodGet, entry.Method)
			assert.Equal(t, "/api/metrics?rpc=x", entry.URI)
			assert.Equal(t, tt.status, entry.Status)
		})
	}
}

func TestDiscard(t *testing.T) {
	log := logger.Discard()
	assert.NotPanics(t, func() { log.Error("dropped") })
}
