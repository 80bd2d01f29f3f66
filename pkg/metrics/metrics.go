// Package metrics holds the Prometheus collectors for the monitor.
//
// All helper methods are safe to call on a nil *Metrics, so components can
// be constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Metrics holds all Prometheus collectors for the monitor.
type Metrics struct {
	// Fetch client
	PollsTotal   *prometheus.CounterVec
	FetchErrors  *prometheus.CounterVec
	ProbeLatency prometheus.Histogram

	// Poller
	CycleDuration       prometheus.Histogram
	ObservationsStored  prometheus.Counter
	ObservationsDropped *prometheus.CounterVec
	EndpointSlot        *prometheus.GaugeVec
	EndpointLatency     *prometheus.GaugeVec

	// Store
	StoreErrors   *prometheus.CounterVec
	SweepDeleted  prometheus.Counter
	SweepDuration prometheus.Histogram

	// API
	APIRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PollsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_polls_total",
			Help:      "Completed polls by the protocol tier that satisfied them",
		}, []string{"tier"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Fetch attempt failures by tier and error kind",
		}, []string{"tier", "kind"}),
		ProbeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Round-trip latency of the health probe call",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of one poll cycle across all endpoints",
			Buckets:   prometheus.DefBuckets,
		}),
		ObservationsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_stored_total",
			Help:      "Observations written to the sample store",
		}),
		ObservationsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_dropped_total",
			Help:      "Observations not persisted, by reason",
		}, []string{"reason"}),
		EndpointSlot: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_slot",
			Help:      "Last slot reported by an endpoint",
		}, []string{"nickname"}),
		EndpointLatency: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_latency_milliseconds",
			Help:      "Last measured latency of an endpoint",
		}, []string{"nickname"}),

		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Sample store failures by operation",
		}, []string{"op"}),
		SweepDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Samples evicted by the retention sweep",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retention_sweep_duration_seconds",
			Help:      "Wall time of one retention sweep",
			Buckets:   prometheus.DefBuckets,
		}),

		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by handler and status code",
		}, []string{"handler", "code"}),
	}
}

// ObservePoll records a completed poll satisfied by tier.
func (m *Metrics) ObservePoll(tier string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(tier).Inc()
}

// ObserveFetchError records a failed fetch attempt.
func (m *Metrics) ObserveFetchError(tier, kind string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(tier, kind).Inc()
}

// ObserveProbe records a successful probe round trip.
func (m *Metrics) ObserveProbe(d time.Duration) {
	if m == nil {
		return
	}
	m.ProbeLatency.Observe(d.Seconds())
}

// ObserveCycle records the duration of a poll cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}

// ObserveEndpoint records the latest state reported by an endpoint.
func (m *Metrics) ObserveEndpoint(nickname string, slot, latencyMs uint64) {
	if m == nil {
		return
	}
	m.EndpointSlot.WithLabelValues(nickname).Set(float64(slot))
	m.EndpointLatency.WithLabelValues(nickname).Set(float64(latencyMs))
}

// Stored records a persisted observation.
func (m *Metrics) Stored() {
	if m == nil {
		return
	}
	m.ObservationsStored.Inc()
}

// Dropped records an observation that was not persisted.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.ObservationsDropped.WithLabelValues(reason).Inc()
}

// StoreError records a failed store operation.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

// Swept records a completed retention sweep.
func (m *Metrics) Swept(deleted int, d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDeleted.Add(float64(deleted))
	m.SweepDuration.Observe(d.Seconds())
}

// InstrumentHandler counts requests served by h under the handler label
// name, by status code. It returns h unchanged on a nil *Metrics.
func (m *Metrics) InstrumentHandler(name string, h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return promhttp.InstrumentHandlerCounter(
		m.APIRequests.MustCurryWith(prometheus.Labels{"handler": name}), h)
}
