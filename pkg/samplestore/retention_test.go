package samplestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/logger"
	"github.com/fortiblox/X1-Pulse/pkg/metrics"
)

func at(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func TestSweeper_SweepOnce(t *testing.T) {
	now := time.Unix(1700003600, 0)

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			old := observation("alpha", at(now.Add(-2*time.Hour)), 1)
			recent := observation("alpha", at(now.Add(-30*time.Minute)), 2)
			edge := observation("beta", at(now.Add(-time.Hour)), 3)
			for _, o := range []types.Observation{old, recent, edge} {
				require.NoError(t, s.Put(ctx, o))
			}

			m := metrics.New(prometheus.NewRegistry())
			sweeper := NewSweeper(s, logger.Discard(), m)
			sweeper.Now = func() time.Time { return now }

			n, err := sweeper.SweepOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			keys := collect(t, s, ScanOptions{})
			assert.NotContains(t, keys, Key(old), "two hours old is evicted")
			assert.Contains(t, keys, Key(recent), "thirty minutes old survives")
			assert.Contains(t, keys, Key(edge), "exactly at the horizon survives")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepDeleted))

			n, err = sweeper.SweepOnce(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

// failingStore fails the configured operation.
type failingStore struct {
	Store
	scanErr   error
	deleteErr error
	deleted   [][]string
}

func (f *failingStore) Scan(ctx context.Context, opts ScanOptions, fn ScanFunc) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	return f.Store.Scan(ctx, opts, fn)
}

func (f *failingStore) DeleteBatch(ctx context.Context, keys []string) error {
	f.deleted = append(f.deleted, keys)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteBatch(ctx, keys)
}

func TestSweeper_ScanFailureDeletesNothing(t *testing.T) {
	base, err := OpenBadger(Config{InMemory: true, Logger: logger.Discard()})
	require.NoError(t, err)
	defer base.Close()

	ctx := context.Background()
	require.NoError(t, base.Put(ctx, observation("alpha", 1, 1)))

	fs := &failingStore{Store: base, scanErr: &StorageError{Op: "scan", Err: errors.New("io")}}
	m := metrics.New(prometheus.NewRegistry())
	sweeper := NewSweeper(fs, logger.Discard(), m)

	_, err = sweeper.SweepOnce(ctx)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Empty(t, fs.deleted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("scan")))

	n, err := base.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeper_DeleteFailure(t *testing.T) {
	base, err := OpenBadger(Config{InMemory: true, Logger: logger.Discard()})
	require.NoError(t, err)
	defer base.Close()

	ctx := context.Background()
	require.NoError(t, base.Put(ctx, observation("alpha", 1, 1)))

	fs := &failingStore{Store: base, deleteErr: errors.New("disk full")}
	sweeper := NewSweeper(fs, logger.Discard(), nil)

	n, err := sweeper.SweepOnce(ctx)
	assert.Error(t, err)
	assert.Zero(t, n)
	require.Len(t, fs.deleted, 1)
	assert.Equal(t, []string{"alpha:1"}, fs.deleted[0])
}

func TestSweeper_Run(t *testing.T) {
	s, err := OpenBadger(Config{InMemory: true, Logger: logger.Discard()})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Put(ctx, observation("alpha", 1, 1)))

	sweeper := NewSweeper(s, logger.Discard(), nil)
	sweeper.Interval = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		n, err := s.Len(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSweeper_RunSweepsOnStart(t *testing.T) {
	s, err := OpenBadger(Config{InMemory: true, Logger: logger.Discard()})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Put(ctx, observation("alpha", 1, 1)))

	sweeper := NewSweeper(s, logger.Discard(), nil)
	sweeper.Interval = time.Hour

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		n, err := s.Len(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "expired samples are swept before the first tick")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
