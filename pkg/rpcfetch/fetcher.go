package rpcfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/metrics"
)

// Default client configuration values.
const (
	DefaultCommitment       = "finalized"
	DefaultStatsLogInterval = 50

	// SentinelLatencyMs is reported when the probe fails on both protocols.
	SentinelLatencyMs = 9999
)

// probeBody is the getHealth request, serialized once.
var probeBody = []byte(`{"jsonrpc":"2.0","id":1,"method":"getHealth"}`)

// Config holds configuration for the Client.
type Config struct {
	// Commitment is passed to getSlot and getLatestBlockhash.
	Commitment string

	// StatsLogInterval is the number of completed polls between tier ratio
	// log lines.
	StatsLogInterval uint64

	// Logger receives tier failures and the periodic ratio line.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Commitment:       DefaultCommitment,
		StatsLogInterval: DefaultStatsLogInterval,
	}
}

// WithDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Commitment == "" {
		c.Commitment = defaults.Commitment
	}
	if c.StatsLogInterval == 0 {
		c.StatsLogInterval = defaults.StatsLogInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return c
}

// TierStats is a snapshot of the tier counters.
type TierStats struct {
	Preferred uint64 `json:"preferred"`
	Fallback  uint64 `json:"fallback"`
	Completed uint64 `json:"completed"`
}

// PreferredRatio returns the share of completed polls satisfied by the
// preferred tier, in percent.
func (s TierStats) PreferredRatio() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Preferred) / float64(s.Completed) * 100
}

// Client fetches one Observation per endpoint, falling back through the
// protocol tiers.
//
// Fetch never returns an error: the worst case is a degraded Observation,
// which callers reject with Observation.Valid.
type Client struct {
	config     Config
	transports *Transports
	strategies []Strategy

	preferred atomic.Uint64
	fallback  atomic.Uint64
	completed atomic.Uint64

	now func() time.Time
}

// NewClient creates a Client over transports with the default tier order:
// concurrent calls on the preferred client, concurrent calls on the legacy
// client, sequential calls on the minimal client.
func NewClient(transports *Transports, config Config) (*Client, error) {
	if transports == nil || transports.Preferred == nil || transports.Legacy == nil || transports.Minimal == nil {
		return nil, fmt.Errorf("rpcfetch: incomplete transports")
	}
	config = config.WithDefaults()

	return &Client{
		config:     config,
		transports: transports,
		strategies: []Strategy{
			NewConcurrentStrategy(TierPreferred, transports.Preferred, config.Commitment),
			NewConcurrentStrategy(TierFallback, transports.Legacy, config.Commitment),
			NewSequentialStrategy(transports.Minimal, config.Commitment),
		},
		now: time.Now,
	}, nil
}

// SetStrategies replaces the tier order.
// Must be called before the client is used.
func (c *Client) SetStrategies(strategies ...Strategy) {
	c.strategies = strategies
}

// Fetch polls ep and returns its Observation. It never panics and never
// blocks longer than the transport timeouts allow.
func (c *Client) Fetch(ctx context.Context, ep types.Endpoint) (obs types.Observation) {
	obs = types.NewObservation(ep, c.now())
	obs.LatencyMs = SentinelLatencyMs

	defer func() {
		if r := recover(); r != nil {
			c.config.Logger.Error("fetch panicked", "endpoint", ep.Nickname, "panic", r)
			obs.Slot = 0
			obs.Blockhash = types.BlockhashUnavailable
		}
	}()

	result := attempt(ctx, c.strategies, ep)
	for _, te := range result.Errs {
		kind := Classify(te.Err)
		c.config.Metrics.ObserveFetchError(te.Tier.String(), kind.String())
		c.config.Logger.Warn("fetch tier failed",
			"endpoint", ep.Nickname,
			"tier", te.Tier,
			"kind", kind,
			"error", te.Err)
	}
	c.record(result.Tier)

	obs.Slot = result.State.Slot
	obs.Blockhash = result.State.Blockhash
	if obs.Blockhash == "" {
		obs.Blockhash = types.BlockhashUnavailable
	}

	if !result.Ok() {
		return obs
	}

	latency, err := c.probe(ctx, ep.URL)
	if err != nil {
		c.config.Logger.Warn("latency probe failed", "endpoint", ep.Nickname, "error", err)
		return obs
	}
	obs.LatencyMs = uint64(latency.Milliseconds())
	return obs
}

// probe measures one getHealth round trip on the preferred client, retrying
// once on the legacy client.
func (c *Client) probe(ctx context.Context, url string) (time.Duration, error) {
	d, err := c.probeOnce(ctx, c.transports.Preferred, url)
	if err == nil {
		return d, nil
	}

	d, retryErr := c.probeOnce(ctx, c.transports.Legacy, url)
	if retryErr != nil {
		return 0, fmt.Errorf("preferred: %v; legacy: %w", err, retryErr)
	}
	return d, nil
}

// probeOnce times the request write through the full body read. A JSON-RPC
// error body is still a completed round trip and is not parsed.
func (c *Client) probeOnce(ctx context.Context, httpClient *http.Client, url string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(probeBody))
	if err != nil {
		return 0, &TransportError{Method: "getHealth", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, &TransportError{Method: "getHealth", Err: err}
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, &TransportError{Method: "getHealth", Err: err}
	}
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return 0, &ProtocolError{Method: "getHealth", StatusCode: resp.StatusCode}
	}

	c.config.Metrics.ObserveProbe(elapsed)
	return elapsed, nil
}

// record updates the tier counters and logs the ratio every
// StatsLogInterval completed polls.
func (c *Client) record(tier Tier) {
	if tier == TierPreferred {
		c.preferred.Add(1)
	} else {
		c.fallback.Add(1)
	}
	c.config.Metrics.ObservePoll(tier.String())

	if n := c.completed.Add(1); n%c.config.StatsLogInterval == 0 {
		stats := c.Stats()
		c.config.Logger.Info("protocol tier stats",
			"completed", stats.Completed,
			"preferred", stats.Preferred,
			"fallback", stats.Fallback,
			"preferred_pct", fmt.Sprintf("%.1f", stats.PreferredRatio()))
	}
}

// Stats returns a snapshot of the tier counters.
func (c *Client) Stats() TierStats {
	return TierStats{
		Preferred: c.preferred.Load(),
		Fallback:  c.fallback.Load(),
		Completed: c.completed.Load(),
	}
}
