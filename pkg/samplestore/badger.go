package samplestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/logger"
)

// BadgerStore implements Store on BadgerDB.
//
// Values are small JSON documents, so they are kept inline in the LSM tree
// and block-compressed with ZSTD.
type BadgerStore struct {
	db     *badger.DB
	config Config

	// mu guards closed against in-flight operations.
	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens or creates a badger store under config.Path.
func OpenBadger(config Config) (*BadgerStore, error) {
	return openBadger(config, nil)
}

// openBadger is OpenBadger with a hook to adjust the options before open.
func openBadger(config Config, tune func(badger.Options) badger.Options) (*BadgerStore, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := filepath.Join(config.Path, "badger")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	opts = opts.
		WithSyncWrites(config.SyncWrites).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(logger.NewBadger(config.Logger))
	if tune != nil {
		opts = tune(opts)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	return &BadgerStore{db: db, config: config}, nil
}

// Put writes obs under Key(obs).
func (s *BadgerStore) Put(ctx context.Context, obs types.Observation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := EncodeObservation(obs)
	if err != nil {
		return wrapErr("put", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(Key(obs)), value)
	})
	return wrapErr("put", err)
}

// Scan iterates records in key order inside one read transaction, so it
// sees a consistent snapshot.
func (s *BadgerStore) Scan(ctx context.Context, opts ScanOptions, fn ScanFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = opts.Reverse

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			key := string(item.KeyCopy(nil))

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			obs, err := DecodeObservation(val)
			if err != nil {
				s.config.Logger.Debug("skipping undecodable record", "key", key, "error", err)
				continue
			}

			if err := fn(key, obs); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopScan) {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return wrapErr("scan", err)
}

// DeleteBatch removes keys in a single transaction. A batch larger than one
// transaction allows is committed in consecutive transactions, so an
// oversized batch is not atomic: a failure part way through leaves the
// earlier chunks deleted.
func (s *BadgerStore) DeleteBatch(ctx context.Context, keys []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, k := range keys {
		key := []byte(k)
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return wrapErr("delete", err)
			}
			txn = s.db.NewTransaction(true)
			err = txn.Delete(key)
		}
		if err != nil {
			return wrapErr("delete", err)
		}
	}

	return wrapErr("delete", txn.Commit())
}

// Len counts records with a key-only iteration.
func (s *BadgerStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr("len", err)
	}
	return n, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return wrapErr("close", s.db.Close())
}
