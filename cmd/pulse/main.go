// X1-Pulse: RPC endpoint monitor for X1 and Solana-compatible networks
//
// This is the main entry point for X1-Pulse. It polls every configured RPC
// endpoint on a fixed cadence, stores the samples in an embedded store,
// and serves consensus analytics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/fortiblox/X1-Pulse/internal/config"
	"github.com/fortiblox/X1-Pulse/pkg/dashboard"
	"github.com/fortiblox/X1-Pulse/pkg/healthsvc"
	"github.com/fortiblox/X1-Pulse/pkg/logger"
	"github.com/fortiblox/X1-Pulse/pkg/metrics"
	"github.com/fortiblox/X1-Pulse/pkg/poller"
	"github.com/fortiblox/X1-Pulse/pkg/rpcfetch"
	"github.com/fortiblox/X1-Pulse/pkg/samplestore"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := config.NewFlagSet("pulse")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if showVersion, _ := flags.GetBool("version"); showVersion {
		fmt.Printf("X1-Pulse %s (%s)\n", Version, GitCommit)
		return 0
	}

	cfg, err := config.FromFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "X1-Pulse: %v\n", err)
		return 1
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	log.Info("starting X1-Pulse", "version", Version, "commit", GitCommit, "config", cfg.File)
	for _, ep := range cfg.RPC.Endpoints {
		log.Info("monitoring endpoint", "nickname", ep.Nickname)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error("X1-Pulse stopped with error", "error", err)
		return 1
	}

	log.Info("X1-Pulse stopped")
	return 0
}

// serve wires every component and runs until ctx is done or one of them
// fails.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, err := samplestore.Open(samplestore.Config{
		Engine:     cfg.Storage.Engine,
		Path:       cfg.Storage.DataDir,
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     log.With("component", "store"),
	})
	if err != nil {
		return fmt.Errorf("open sample store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close sample store", "error", err)
		}
	}()

	transportConfig := rpcfetch.DefaultTransportConfig()
	transportConfig.RequestTimeout = cfg.RPC.RequestTimeout
	transports, err := rpcfetch.NewTransports(transportConfig)
	if err != nil {
		return fmt.Errorf("create transports: %w", err)
	}
	defer transports.CloseIdleConnections()

	client, err := rpcfetch.NewClient(transports, rpcfetch.Config{
		Commitment:       cfg.RPC.Commitment,
		StatsLogInterval: cfg.RPC.StatsLogInterval,
		Logger:           log.With("component", "fetch"),
		Metrics:          m,
	})
	if err != nil {
		return fmt.Errorf("create fetch client: %w", err)
	}

	dash, err := dashboard.New(dashboard.Config{
		BindAddress: cfg.Server.ListenIP,
		Port:        cfg.Server.Port,
		QueryRate:   cfg.Server.QueryRate,
		QueryBurst:  cfg.Server.QueryBurst,
		Logger:      log.With("component", "http"),
		Metrics:     m,
	}, store, client, reg)
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}

	pollerOpts := []poller.Option{
		poller.WithInterval(cfg.RPC.PollInterval),
		poller.WithLogger(log.With("component", "poller")),
		poller.WithMetrics(m),
		poller.WithOnCycle(dash.OnCycle),
	}

	var health *healthsvc.Service
	if cfg.GRPC.Listen != "" {
		health = healthsvc.New(healthsvc.Config{
			ListenAddress: cfg.GRPC.Listen,
			Logger:        log.With("component", "grpc"),
		}, cfg.RPC.Endpoints)
		pollerOpts = append(pollerOpts, poller.WithOnCycle(health.OnCycle))
	}

	p := poller.New(client, store, cfg.RPC.Endpoints, pollerOpts...)

	sweeper := samplestore.NewSweeper(store, log.With("component", "retention"), m)
	sweeper.Horizon = cfg.Storage.Retention
	sweeper.Interval = cfg.Storage.SweepInterval

	g, ctx := errgroup.WithContext(ctx)

	if health != nil {
		if err := health.Start(ctx); err != nil {
			return fmt.Errorf("start health service: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			health.Stop()
			return nil
		})
	}

	g.Go(func() error {
		p.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return dash.Start(ctx)
	})

	err = g.Wait()

	stats := client.Stats()
	log.Info("final protocol tier stats",
		"preferred", stats.Preferred,
		"fallback", stats.Fallback,
		"completed", stats.Completed,
		"cycles", p.Cycles())

	return err
}
