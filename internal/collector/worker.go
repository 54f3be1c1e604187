package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/source"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Worker)(nil)
	_ plugin.HTTPProvider  = (*Worker)(nil)
	_ plugin.HealthChecker = (*Worker)(nil)
)

// Worker runs the engine on a fixed interval.
type Worker struct {
	src      source.Source
	cache    *snapshot.Cache
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a collector worker over src publishing into cache.
func NewWorker(src source.Source, cache *snapshot.Cache) *Worker {
	return &Worker{src: src, cache: cache}
}

func (w *Worker) Name() string { return "collector" }

func (w *Worker) Init(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Daemon.CollectionInterval <= 0 {
		return fmt.Errorf("collection interval must be positive, got %v", cfg.Daemon.CollectionInterval)
	}
	w.logger = logger
	w.interval = cfg.Daemon.CollectionInterval
	w.engine = NewEngine(w.src, w.cache, OptionsFromConfig(cfg), logger)
	w.logger.Info("collector initialized",
		zap.Duration("interval", w.interval),
		zap.Int("max_concurrent", w.engine.opts.MaxConcurrent),
		zap.Bool("vm_enabled", w.engine.opts.VMEnabled),
	)
	return nil
}

// Engine exposes the underlying engine.
func (w *Worker) Engine() *Engine { return w.engine }

// Start runs a first collection in the background and then one per
// interval until Stop or ctx cancellation.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return fmt.Errorf("collector already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
	return nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("collector loop stopped")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle runs one collection bounded by the interval.
func (w *Worker) cycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()
	w.engine.Collect(cctx)
}

// Stop cancels the loop and waits for an in-flight cycle until ctx ends.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("collector did not stop before deadline")
		return ctx.Err()
	}
}

// Health reports unhealthy until the first successful collection.
func (w *Worker) Health(context.Context) plugin.HealthStatus {
	if w.engine == nil || w.engine.History().Len() == 0 {
		return plugin.HealthStatus{Healthy: false, Detail: "no successful collection yet"}
	}
	ps := w.engine.History().Stats()
	return plugin.HealthStatus{
		Healthy: true,
		Detail:  fmt.Sprintf("%d collections, last at %s", ps.Collections, ps.LastCollection.Format(time.RFC3339)),
	}
}

func (w *Worker) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/history", Handler: w.handleHistory},
		{Method: http.MethodDelete, Path: "/cache", Handler: w.handleClearCache},
	}
}

func (w *Worker) handleHistory(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(w.engine.PerfStats())
}

func (w *Worker) handleClearCache(rw http.ResponseWriter, _ *http.Request) {
	w.engine.ClearCache()
	rw.WriteHeader(http.StatusNoContent)
}
