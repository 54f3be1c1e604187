package main

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/agent"
	"github.com/mancow2001/ntx-custom-monitor/internal/collector"
	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/health"
	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
	"github.com/mancow2001/ntx-custom-monitor/internal/server"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/source"
	"github.com/mancow2001/ntx-custom-monitor/internal/version"
)

// Simulated topology used in test mode.
const (
	simClusters        = 2
	simHostsPerCluster = 3
	simVMsPerHost      = 4
)

// loadConfig loads and validates the configuration, applying the test mode
// override before validation.
func loadConfig(path string, testMode bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if testMode {
		cfg.Debug.TestMode = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newSource builds the telemetry source. Test mode always uses simulated
// data.
func newSource(cfg *config.Config, logger *zap.Logger) (source.Source, error) {
	if cfg.Debug.TestMode {
		logger.Warn("test mode enabled, serving simulated telemetry")
		return source.NewSimulated(simClusters, simHostsPerCluster, simVMsPerHost), nil
	}
	client, err := source.NewPrismClient(cfg.Prism, logger)
	if err != nil {
		return nil, fmt.Errorf("create prism client: %w", err)
	}
	return client, nil
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	testMode := fs.Bool("test-mode", false, "serve simulated telemetry")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath, *testMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, err := newLogger(cfg.Daemon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ntx-snmpd starting",
		zap.String("version", version.Short()),
		zap.String("config", cfg.File),
		zap.Bool("test_mode", cfg.Debug.TestMode),
	)

	src, err := newSource(cfg, logger.Named("source"))
	if err != nil {
		logger.Error("failed to create telemetry source", zap.Error(err))
		return 1
	}
	if p, ok := src.(*source.PrismClient); ok {
		pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Prism.Timeout)
		if err := p.Ping(pingCtx); err != nil {
			logger.Warn("prism central not reachable yet", zap.Error(err))
		}
		cancel()
	}

	cache := snapshot.NewCache(nil)
	collectorWorker := collector.NewWorker(src, cache)
	snmpWorker := agent.NewWorker(cache, version.Short())
	monitor := health.NewMonitor(nil)

	registry := plugin.NewRegistry(logger)
	for _, p := range []plugin.Plugin{collectorWorker, snmpWorker, monitor} {
		if err := registry.Register(p); err != nil {
			logger.Error("failed to register plugin", zap.Error(err))
			return 1
		}
	}
	if err := registry.InitAll(cfg); err != nil {
		logger.Error("failed to initialize plugins", zap.Error(err))
		return 1
	}

	monitor.AddCheck("source", health.SourceCheck(src))
	checkers := registry.HealthCheckers()
	for _, name := range slices.Sorted(maps.Keys(checkers)) {
		monitor.AddCheck(name, checkers[name])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if err := registry.StartAll(ctx); err != nil {
		logger.Error("failed to start plugins", zap.Error(err))
		stop()
		exitCode = 1
	}

	var srv *server.Server
	if cfg.Daemon.StatusAddr != "" && exitCode == 0 {
		srv = server.New(server.Options{
			Addr:      cfg.Daemon.StatusAddr,
			Registry:  registry,
			Monitor:   monitor,
			Cache:     cache,
			Collector: collectorWorker.Engine(),
			Requests:  snmpWorker.Responder(),
			OIDs:      snmpWorker.Index(),
		}, logger.Named("server"))
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	if exitCode == 0 {
		logger.Info("ntx-snmpd ready")
	}
	<-ctx.Done()
	logger.Info("shutting down", zap.Duration("timeout", cfg.Daemon.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown error", zap.Error(err))
		}
	}
	if err := registry.StopAll(shutdownCtx); err != nil {
		logger.Error("plugins did not stop cleanly", zap.Error(err))
		exitCode = 1
	}

	logger.Info("ntx-snmpd stopped", zap.Duration("shutdown", time.Since(start)))
	return exitCode
}
