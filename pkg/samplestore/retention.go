package samplestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/metrics"
)

// Default retention values.
const (
	DefaultRetentionHorizon = time.Hour
	DefaultSweepInterval    = 60 * time.Second
)

// Sweeper evicts observations older than Horizon.
type Sweeper struct {
	Store    Store
	Horizon  time.Duration
	Interval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewSweeper creates a sweeper with the default horizon and interval.
func NewSweeper(store Store, log *slog.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		Store:    store,
		Horizon:  DefaultRetentionHorizon,
		Interval: DefaultSweepInterval,
		Now:      time.Now,
		Logger:   log,
		Metrics:  m,
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// SweepOnce scans the whole store from the oldest key, collects every
// observation captured before now minus Horizon, and deletes them in one
// batch. A scan failure deletes nothing.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	horizon := s.Horizon
	if horizon <= 0 {
		horizon = DefaultRetentionHorizon
	}

	start := time.Now()
	cutoff := float64(s.now().Add(-horizon).UnixNano()) / float64(time.Second)

	var expired []string
	err := s.Store.Scan(ctx, ScanOptions{}, func(key string, obs types.Observation) error {
		if obs.Timestamp < cutoff {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		s.Metrics.StoreError("scan")
		return 0, err
	}

	if err := s.Store.DeleteBatch(ctx, expired); err != nil {
		s.Metrics.StoreError("delete")
		return 0, err
	}

	s.Metrics.Swept(len(expired), time.Since(start))
	return len(expired), nil
}

// Run sweeps once immediately, then every Interval until ctx is done.
// Failed sweeps are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	if !s.sweep(ctx) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sweep(ctx) {
				return
			}
		}
	}
}

// sweep runs one logged pass. It reports false once ctx is done.
func (s *Sweeper) sweep(ctx context.Context) bool {
	n, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger().Error("retention sweep failed", "error", err)
		return true
	}
	if n > 0 {
		s.logger().Info("retention sweep", "deleted", n)
	}
	return true
}
