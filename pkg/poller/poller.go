// Package poller drives the fetch client against every configured endpoint
// on a fixed cadence and persists the valid observations.
//
// Each cycle fans out one goroutine per endpoint and waits for all of them,
// so cycles never overlap and an endpoint's samples are written in order.
// The next cycle starts a full Interval after the previous one completes.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/metrics"
)

// DefaultInterval is the wait between the end of one cycle and the start of
// the next.
const DefaultInterval = 2000 * time.Millisecond

// Fetcher obtains one observation for an endpoint. It must not return an
// error; failures are reported as invalid observations.
type Fetcher interface {
	Fetch(ctx context.Context, ep types.Endpoint) types.Observation
}

// Writer persists observations.
type Writer interface {
	Put(ctx context.Context, obs types.Observation) error
}

// EndpointResult is the outcome of one endpoint in a cycle.
type EndpointResult struct {
	Endpoint    types.Endpoint
	Observation types.Observation

	// Stored is set when the observation was valid and written.
	Stored bool

	// Err is a store failure or a recovered fetch panic.
	Err error
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Started  time.Time
	Duration time.Duration

	Stored  int
	Dropped int
	Failed  int

	// Observations holds the stored observations.
	Observations []types.Observation

	// Results has one entry per endpoint, in registry order.
	Results []EndpointResult
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the wait between cycles.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithOnCycle registers a hook called after every cycle. Hooks run on the
// poller goroutine and delay the next cycle, so they must be quick.
func WithOnCycle(fn func(CycleResult)) Option {
	return func(p *Poller) {
		if fn != nil {
			p.onCycle = append(p.onCycle, fn)
		}
	}
}

// Poller polls a fixed endpoint registry.
type Poller struct {
	fetcher   Fetcher
	store     Writer
	endpoints []types.Endpoint

	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	onCycle  []func(CycleResult)

	cycles atomic.Uint64

	// Lifecycle for Start/Stop.
	started atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a poller. The endpoint slice is copied and never modified.
func New(fetcher Fetcher, store Writer, endpoints []types.Endpoint, opts ...Option) *Poller {
	p := &Poller{
		fetcher:   fetcher,
		store:     store,
		endpoints: append([]types.Endpoint(nil), endpoints...),
		interval:  DefaultInterval,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Endpoints returns the registry.
func (p *Poller) Endpoints() []types.Endpoint {
	return append([]types.Endpoint(nil), p.endpoints...)
}

// Cycles returns the number of completed cycles.
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("poller started", "endpoints", len(p.endpoints), "interval", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped", "cycles", p.cycles.Load())
			return
		case <-timer.C:
		}

		p.RunCycle(ctx)
		timer.Reset(p.interval)
	}
}

// Start runs the poller in the background.
func (p *Poller) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(ctx)
	}()
}

// Stop cancels a poller started with Start and waits for the current cycle.
func (p *Poller) Stop() {
	if p.closed.Swap(true) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// RunCycle polls every endpoint once, concurrently, and writes the valid
// observations. It returns when every endpoint has finished.
func (p *Poller) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{
		Started: time.Now(),
		Results: make([]EndpointResult, len(p.endpoints)),
	}

	var wg sync.WaitGroup
	for i, ep := range p.endpoints {
		wg.Add(1)
		go func(i int, ep types.Endpoint) {
			defer wg.Done()
			result.Results[i] = p.pollEndpoint(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	for _, r := range result.Results {
		switch {
		case r.Stored:
			result.Stored++
			result.Observations = append(result.Observations, r.Observation)
		case r.Err != nil:
			result.Failed++
		default:
			result.Dropped++
		}
	}
	result.Duration = time.Since(result.Started)
	p.cycles.Add(1)

	p.metrics.ObserveCycle(result.Duration)
	p.log.Debug("poll cycle complete",
		"stored", result.Stored,
		"dropped", result.Dropped,
		"failed", result.Failed,
		"duration", result.Duration)

	for _, fn := range p.onCycle {
		p.runHook(fn, result)
	}
	return result
}

// pollEndpoint fetches, validates and stores one endpoint. A panic is
// recovered so it cannot affect the other endpoints.
func (p *Poller) pollEndpoint(ctx context.Context, ep types.Endpoint) (r EndpointResult) {
	r.Endpoint = ep
	r.Observation = types.NewObservation(ep, time.Now())

	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("endpoint poll panicked", "endpoint", ep.Nickname, "panic", rec)
			p.metrics.Dropped("panic")
			r.Stored = false
			r.Err = fmt.Errorf("poll %s: panic: %v", ep.Nickname, rec)
		}
	}()

	obs := p.fetcher.Fetch(ctx, ep)
	r.Observation = obs

	if !obs.Valid() {
		p.log.Warn("dropping invalid observation",
			"endpoint", ep.Nickname,
			"slot", obs.Slot,
			"blockhash", obs.Blockhash)
		p.metrics.Dropped("invalid")
		return r
	}

	if err := p.store.Put(ctx, obs); err != nil {
		p.log.Error("failed to store observation", "endpoint", ep.Nickname, "error", err)
		p.metrics.StoreError("put")
		r.Err = err
		return r
	}

	r.Stored = true
	p.metrics.Stored()
	p.metrics.ObserveEndpoint(ep.Nickname, obs.Slot, obs.LatencyMs)
	return r
}

func (p *Poller) runHook(fn func(CycleResult), result CycleResult) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("cycle hook panicked", "panic", rec)
		}
	}()
	fn(result)
}
