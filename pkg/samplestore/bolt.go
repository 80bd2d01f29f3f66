package samplestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// bucketObservations stores encoded observations keyed by Key.
var bucketObservations = []byte("observations")

// BoltFileName is the database file created under Config.Path.
const BoltFileName = "samples.db"

// BoltStore implements Store on bbolt.
//
// bbolt writes values to pages uncompressed, so each value is
// zstd-compressed before it is stored.
type BoltStore struct {
	db     *bolt.DB
	config Config

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu     sync.RWMutex
	closed bool
}

// OpenBolt opens or creates a bolt store at config.Path/BoltFileName.
func OpenBolt(config Config) (*BoltStore, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout: 5 * time.Second,
		NoSync:  !config.SyncWrites,
	}

	db, err := bolt.Open(filepath.Join(config.Path, BoltFileName), 0600, opts)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketObservations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &StorageError{Op: "init", Err: err}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &BoltStore{
		db:     db,
		config: config,
		enc:    enc,
		dec:    dec,
	}, nil
}

// Put writes obs under Key(obs).
func (s *BoltStore) Put(ctx context.Context, obs types.Observation) error {
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
	compressed := s.enc.EncodeAll(value, nil)

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObservations).Put([]byte(Key(obs)), compressed)
	})
	return wrapErr("put", err)
}

// Scan walks the bucket with a cursor inside one read transaction.
func (s *BoltStore) Scan(ctx context.Context, opts ScanOptions, fn ScanFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObservations).Cursor()

		first, next := c.First, c.Next
		if opts.Reverse {
			first, next = c.Last, c.Prev
		}

		for k, v := first(); k != nil; k, v = next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := string(k)
			obs, err := s.decode(v)
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

func (s *BoltStore) decode(v []byte) (types.Observation, error) {
	raw, err := s.dec.DecodeAll(v, nil)
	if err != nil {
		return types.Observation{}, fmt.Errorf("decompress: %w", err)
	}
	return DecodeObservation(raw)
}

// DeleteBatch removes keys in a single transaction.
func (s *BoltStore) DeleteBatch(ctx context.Context, keys []string) error {
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

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObservations)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr("delete", err)
}

// Len returns the bucket key count.
func (s *BoltStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketObservations).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, wrapErr("len", err)
	}
	return n, nil
}

// Close closes the database and releases the codecs.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.dec.Close()
	s.enc.Close()
	return wrapErr("close", s.db.Close())
}
