// Package samplestore provides persistent time-series storage for endpoint
// observations.
//
// Records are keyed by "nickname:unix_seconds", so key order is
// chronological within one endpoint but not across endpoints. Two backends
// are available: badger (LSM, the default) and bbolt (B+tree, single file).
// Both are safe for concurrent use by the poller, the retention sweeper and
// the API.
package samplestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("samplestore closed")

	// ErrStopScan may be returned by a ScanFunc to end a scan early.
	// Scan then returns nil.
	ErrStopScan = errors.New("stop scan")

	// ErrUnknownEngine is returned by Open for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown storage engine")
)

// Engine names accepted by Open.
const (
	EngineBadger = "badger"
	EngineBolt   = "bolt"
)

// StorageError is an I/O failure of a store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("samplestore %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ScanOptions controls iteration order.
type ScanOptions struct {
	// Reverse iterates from the largest key to the smallest.
	Reverse bool
}

// ScanFunc is called for each decoded record.
type ScanFunc func(key string, obs types.Observation) error

// Store is an append-only, key-ordered observation store.
type Store interface {
	// Put writes obs under Key(obs).
	Put(ctx context.Context, obs types.Observation) error

	// Scan calls fn for every record in key order. Records that cannot be
	// decoded are skipped.
	Scan(ctx context.Context, opts ScanOptions, fn ScanFunc) error

	// DeleteBatch removes keys as one batch.
	DeleteBatch(ctx context.Context, keys []string) error

	// Len returns the number of stored records.
	Len(ctx context.Context) (int, error)

	Close() error
}

// Config holds store configuration options.
type Config struct {
	// Engine is EngineBadger or EngineBolt.
	Engine string

	// Path is the data directory.
	Path string

	// InMemory runs badger without touching disk (for testing).
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives skipped records and backend log output.
	Logger *slog.Logger
}

// DefaultConfig returns the default store configuration.
func DefaultConfig(path string) Config {
	return Config{
		Engine: EngineBadger,
		Path:   path,
	}
}

// Open opens the store selected by config.Engine.
func Open(config Config) (Store, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	switch strings.ToLower(config.Engine) {
	case "", EngineBadger:
		return OpenBadger(config)
	case EngineBolt:
		return OpenBolt(config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, config.Engine)
	}
}
