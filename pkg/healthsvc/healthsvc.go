// Package healthsvc exposes poller and endpoint health over the standard
// gRPC health checking protocol.
//
// The overall service "" is SERVING while poll cycles keep completing. Each
// endpoint is reported as service "pulse.endpoint.<nickname>", SERVING when
// its last poll produced a stored observation.
package healthsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/poller"
)

// ServicePrefix prefixes per-endpoint service names.
const ServicePrefix = "pulse.endpoint."

// DefaultStaleAfter is how long without a completed cycle before the overall
// service turns NOT_SERVING.
const DefaultStaleAfter = 30 * time.Second

// minWatchPeriod bounds how often the staleness check runs.
const minWatchPeriod = 10 * time.Millisecond

// ErrAlreadyStarted is returned by Start on a running service.
var ErrAlreadyStarted = errors.New("health service already started")

// ServiceName returns the health service name of an endpoint.
func ServiceName(nickname string) string {
	return ServicePrefix + nickname
}

// Config holds configuration for the Service.
type Config struct {
	// ListenAddress is the gRPC listen address, e.g. "127.0.0.1:9090".
	ListenAddress string

	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	Logger *slog.Logger
}

// Service serves grpc.health.v1.Health.
type Service struct {
	config Config
	health *health.Server
	server *grpc.Server

	lastCycle atomic.Int64 // Unix nano timestamp

	mu       sync.Mutex
	listener net.Listener
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a service for endpoints. Every service starts NOT_SERVING.
func New(config Config, endpoints []types.Endpoint) *Service {
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultStaleAfter
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, ep := range endpoints {
		hs.SetServingStatus(ServiceName(ep.Nickname), healthpb.HealthCheckResponse_NOT_SERVING)
	}

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &Service{
		config: config,
		health: hs,
		server: server,
	}
}

// Health returns the underlying health server.
func (s *Service) Health() healthpb.HealthServer {
	return s.health
}

// OnCycle updates statuses from a poll cycle. It is meant to be registered
// with poller.WithOnCycle.
func (s *Service) OnCycle(result poller.CycleResult) {
	s.lastCycle.Store(time.Now().UnixNano())
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	for _, r := range result.Results {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if r.Stored {
			status = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ServiceName(r.Endpoint.Nickname), status)
	}
}

// checkStale marks the overall service NOT_SERVING when no cycle completed
// within StaleAfter.
func (s *Service) checkStale(now time.Time) {
	last := s.lastCycle.Load()
	if last == 0 {
		return
	}
	if now.Sub(time.Unix(0, last)) > s.config.StaleAfter {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Start listens on ListenAddress and serves until ctx is done or Stop is
// called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.ListenAddress, err)
	}
	s.listener = lis
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	s.config.Logger.Info("gRPC health service listening", "address", lis.Addr().String())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.config.Logger.Error("gRPC health service error", "error", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.watch(ctx)
	}()

	return nil
}

func (s *Service) watch(ctx context.Context) {
	ticker := time.NewTicker(watchPeriod(s.config.StaleAfter))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.server.GracefulStop()
			return
		case now := <-ticker.C:
			s.checkStale(now)
		}
	}
}

// watchPeriod checks twice per staleAfter, but no faster than minWatchPeriod.
func watchPeriod(staleAfter time.Duration) time.Duration {
	period := staleAfter / 2
	if period < minWatchPeriod {
		return minWatchPeriod
	}
	return period
}

// Addr returns the listen address once started.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down and waits for the background goroutines.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.server.GracefulStop()
	s.wg.Wait()
}
