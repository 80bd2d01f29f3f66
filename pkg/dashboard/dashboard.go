// Package dashboard provides the HTTP API and web dashboard for X1-Pulse.
//
// It serves the observation history with consensus statistics, the protocol
// tier counters, a websocket feed pushed after every poll cycle, the
// Prometheus exposition and a small static page that renders all of them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/fortiblox/X1-Pulse/pkg/logger"
	"github.com/fortiblox/X1-Pulse/pkg/metrics"
	"github.com/fortiblox/X1-Pulse/pkg/rpcfetch"
	"github.com/fortiblox/X1-Pulse/pkg/samplestore"
)

// ErrAlreadyRunning is returned by Start on a running dashboard.
var ErrAlreadyRunning = errors.New("dashboard already running")

// Config holds configuration for the dashboard server.
type Config struct {
	// BindAddress is the address to bind to (default: "127.0.0.1").
	BindAddress string

	// Port is the port to listen on (default: 3000).
	Port int

	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request.
	IdleTimeout time.Duration

	// QueryRate bounds /api/metrics requests per second, each of which
	// scans the whole store.
	QueryRate float64

	// QueryBurst is the limiter bucket size.
	QueryBurst int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:  "127.0.0.1",
		Port:         3000,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		QueryRate:    10,
		QueryBurst:   20,
	}
}

// TierStatsSource provides the fetch client's protocol tier counters.
type TierStatsSource interface {
	Stats() rpcfetch.TierStats
}

// Dashboard is the HTTP server.
type Dashboard struct {
	config   Config
	store    samplestore.Store
	tiers    TierStatsSource
	gatherer prometheus.Gatherer
	log      *slog.Logger
	limiter  *rate.Limiter
	hub      *Hub
	handler  http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	running  bool
}

// New creates a new dashboard. tiers and gatherer may be nil, in which case
// the corresponding routes report zero counters and 404 respectively.
func New(config Config, store samplestore.Store, tiers TierStatsSource, gatherer prometheus.Gatherer) (*Dashboard, error) {
	if store == nil {
		return nil, errors.New("dashboard requires a sample store")
	}

	defaults := DefaultConfig()
	if config.BindAddress == "" {
		config.BindAddress = defaults.BindAddress
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.QueryRate <= 0 {
		config.QueryRate = defaults.QueryRate
	}
	if config.QueryBurst <= 0 {
		config.QueryBurst = defaults.QueryBurst
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	d := &Dashboard{
		config:   config,
		store:    store,
		tiers:    tiers,
		gatherer: gatherer,
		log:      config.Logger,
		limiter:  rate.NewLimiter(rate.Limit(config.QueryRate), config.QueryBurst),
		hub:      NewHub(config.Logger),
	}
	d.handler = d.routes()

	return d, nil
}

// routes builds the request multiplexer wrapped in request logging.
func (d *Dashboard) routes() http.Handler {
	mux := http.NewServeMux()
	m := d.config.Metrics

	mux.Handle("/api/metrics", m.InstrumentHandler("metrics", http.HandlerFunc(d.handleAPIMetrics)))
	mux.Handle("/api/protocol-stats", m.InstrumentHandler("protocol_stats", http.HandlerFunc(d.handleProtocolStats)))
	mux.Handle("/api/ws", m.InstrumentHandler("ws", http.HandlerFunc(d.hub.HandleWS)))

	if d.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/static/", d.handleStatic)
	mux.HandleFunc("/", d.handleRoot)

	return logger.NewMiddleware(d.log)(mux)
}

// Handler returns the dashboard's HTTP handler.
func (d *Dashboard) Handler() http.Handler {
	return d.handler
}

// Hub returns the websocket hub.
func (d *Dashboard) Hub() *Hub {
	return d.hub
}

// Start listens on the configured address and serves until ctx is done or
// Stop is called. It blocks and returns nil after a graceful shutdown.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}

	lis, err := net.Listen("tcp", d.Address())
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("listen %s: %w", d.Address(), err)
	}

	d.running = true
	d.listener = lis
	d.server = &http.Server{
		Handler:      d.handler,
		ReadTimeout:  d.config.ReadTimeout,
		WriteTimeout: d.config.WriteTimeout,
		IdleTimeout:  d.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	server := d.server
	d.mu.Unlock()

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go d.hub.Run(hubCtx)

	go func() {
		<-hubCtx.Done()
		d.Stop()
	}()

	d.log.Info("dashboard listening", "address", lis.Addr().String())

	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve dashboard: %w", err)
	}
	return nil
}

// Stop gracefully stops the dashboard server.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	server := d.server
	d.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}

	return nil
}

// Address returns the configured listen address.
func (d *Dashboard) Address() string {
	return net.JoinHostPort(d.config.BindAddress, fmt.Sprint(d.config.Port))
}

// ListenAddr returns the bound address once started.
func (d *Dashboard) ListenAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// handleRoot redirects to the dashboard page.
func (d *Dashboard) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/static/index.html", http.StatusFound)
}

// handleStatic serves embedded static assets.
func (d *Dashboard) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/static/")

	content, contentType, ok := getStaticAsset(name)
	if !ok {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write([]byte(content))
}
