package types

import (
	"math"
	"time"
)

// BlockhashUnavailable marks an observation whose blockhash could not be
// obtained from the endpoint.
const BlockhashUnavailable = "Unavailable"

// Endpoint is a monitored RPC target.
//
// Nickname is the display label and must be unique within a registry: the
// sample store partitions its key space by it.
type Endpoint struct {
	URL      string `json:"url" mapstructure:"url"`
	Nickname string `json:"nickname" mapstructure:"nickname"`
}

// Observation is a single poll result for one endpoint.
type Observation struct {
	// Timestamp is the capture time in fractional unix seconds.
	Timestamp float64 `json:"timestamp"`

	// Slot is the chain height reported by the endpoint.
	Slot uint64 `json:"slot"`

	// Blockhash is the latest blockhash reported by the endpoint, or
	// BlockhashUnavailable.
	Blockhash string `json:"blockhash"`

	// LatencyMs is the measured single round-trip latency.
	LatencyMs uint64 `json:"latency_ms"`

	// RPCURL is the endpoint address. Internal only, cleared before an
	// observation leaves the process.
	RPCURL string `json:"rpc_url"`

	// Nickname is the endpoint label.
	Nickname string `json:"nickname"`
}

// NewObservation creates an observation for ep captured at t.
func NewObservation(ep Endpoint, t time.Time) Observation {
	return Observation{
		Timestamp: float64(t.UnixNano()) / float64(time.Second),
		Blockhash: BlockhashUnavailable,
		RPCURL:    ep.URL,
		Nickname:  ep.Nickname,
	}
}

// Valid reports whether the observation may be persisted. Results with a
// zero slot or an unavailable blockhash are non-observations.
func (o Observation) Valid() bool {
	return o.Slot != 0 && o.Blockhash != BlockhashUnavailable && o.Blockhash != ""
}

// CapturedAt returns Timestamp as a time.Time.
func (o Observation) CapturedAt() time.Time {
	sec, frac := math.Modf(o.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// UnixSeconds returns the whole-second part of Timestamp.
func (o Observation) UnixSeconds() int64 {
	return int64(o.Timestamp)
}

// Public returns a copy safe for external consumers, with the address
// cleared.
func (o Observation) Public() Observation {
	o.RPCURL = ""
	return o
}
