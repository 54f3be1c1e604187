// Package collector pulls telemetry from a source, normalizes it and
// publishes one immutable snapshot per cycle.
package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/source"
	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

const (
	// MaxVMs caps how many VMs one snapshot carries.
	MaxVMs = 100
	// vmConcurrency bounds parallel VM stats fetches below the global limit.
	vmConcurrency = 5
	// DefaultMaxConcurrent applies when no limit is configured.
	DefaultMaxConcurrent = 10
)

// Options tunes an Engine.
type Options struct {
	MaxConcurrent int
	CacheEnabled  bool
	CacheTimeout  time.Duration
	VMEnabled     bool
	// Gates holds the enabled metric gates per kind. Kinds without an entry
	// collect every metric.
	Gates map[models.EntityKind]stats.Enabled
	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig derives engine options from the daemon configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	gates := make(map[models.EntityKind]stats.Enabled, len(models.Kinds))
	for _, k := range models.Kinds {
		gates[k] = cfg.Metrics.Gates(k)
	}
	return Options{
		MaxConcurrent: cfg.Performance.MaxConcurrentRequests,
		CacheEnabled:  cfg.Performance.EnableMetricsCache,
		CacheTimeout:  cfg.Performance.CacheTimeout,
		VMEnabled:     cfg.Metrics.VMEnabled(),
		Gates:         gates,
	}
}

// Engine runs collection cycles. It does not schedule itself; see Worker.
type Engine struct {
	src     source.Source
	cache   *snapshot.Cache
	opts    Options
	history *History
	logger  *zap.Logger
}

// NewEngine returns an engine publishing into cache.
func NewEngine(src source.Source, cache *snapshot.Cache, opts Options, logger *zap.Logger) *Engine {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	gates := make(map[models.EntityKind]stats.Enabled, len(models.Kinds))
	for _, k := range models.Kinds {
		if g, ok := opts.Gates[k]; ok && g != nil {
			gates[k] = g
		} else {
			gates[k] = stats.EnableAll(k)
		}
	}
	opts.Gates = gates
	return &Engine{
		src:     src,
		cache:   cache,
		opts:    opts,
		history: &History{},
		logger:  logger,
	}
}

// History returns the engine's collection history.
func (e *Engine) History() *History { return e.history }

// PerfStats returns duration statistics and cache state.
func (e *Engine) PerfStats() PerfStats {
	ps := e.history.Stats()
	ps.CacheEnabled = e.opts.CacheEnabled
	ps.CacheValid = e.opts.CacheEnabled && e.cache.IsFresh(e.opts.CacheTimeout)
	return ps
}

// ClearCache drops the published snapshot so the next cycle collects.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.logger.Info("snapshot cache cleared")
}

// Collect runs one cycle and publishes its result. A fresh cached snapshot
// is returned without touching the source. When the cycle panics or ctx
// ends first, the previous snapshot is republished, or an empty unhealthy
// one when there is none. Collect always returns a non-nil snapshot.
func (e *Engine) Collect(ctx context.Context) *snapshot.Snapshot {
	if e.opts.CacheEnabled && e.cache.IsFresh(e.opts.CacheTimeout) {
		if cur := e.cache.Current(); cur != nil {
			collectionsTotal.WithLabelValues("cached").Inc()
			e.logger.Debug("serving cached snapshot", zap.Time("taken_at", cur.TakenAt))
			return cur
		}
	}

	start := e.opts.Now()
	snap, err := e.collect(ctx)
	if err != nil {
		collectionsTotal.WithLabelValues("failed").Inc()
		e.history.RecordFailure()
		snap = e.cache.Current()
		e.logger.Error("collection failed, serving previous snapshot",
			zap.Error(err),
			zap.Bool("have_previous", snap != nil),
		)
		if snap == nil {
			snap = snapshot.Empty(e.opts.Now(), false)
		}
		e.cache.Publish(snap)
		return snap
	}

	end := e.opts.Now()
	snap.TakenAt = end
	snap.CollectionDuration = end.Sub(start)
	snap.SourceHealthy = e.src.Healthy()
	snap.SourceVersion = e.src.APIVersion()
	e.cache.Publish(snap)

	e.history.Record(snap.CollectionDuration, end)
	collectionsTotal.WithLabelValues("success").Inc()
	collectionDuration.Observe(snap.CollectionDuration.Seconds())
	counts := snap.Counts()
	for _, k := range models.Kinds {
		entitiesGauge.WithLabelValues(k.String()).Set(float64(counts[k]))
	}
	e.logger.Info("collection complete",
		zap.Duration("duration", snap.CollectionDuration),
		zap.Int("clusters", counts[models.KindCluster]),
		zap.Int("hosts", counts[models.KindHost]),
		zap.Int("vms", counts[models.KindVM]),
		zap.Bool("source_healthy", snap.SourceHealthy),
	)
	return snap
}

// errPanic marks a recovered panic.
var errPanic = errors.New("collection panicked")

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v\n%s", errPanic, r, debug.Stack())
	}
}

func (e *Engine) collect(ctx context.Context) (snap *snapshot.Snapshot, err error) {
	defer recoverInto(&err)

	kinds := []models.EntityKind{models.KindCluster, models.KindHost}
	if e.opts.VMEnabled {
		kinds = append(kinds, models.KindVM)
	}

	results := make([]*snapshot.Bucket, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() (err error) {
			defer recoverInto(&err)
			results[i], err = e.collectKind(gctx, kind)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collection interrupted: %w", err)
	}

	snap = snapshot.Empty(time.Time{}, false)
	for i, kind := range kinds {
		switch kind {
		case models.KindCluster:
			snap.Clusters = results[i]
		case models.KindHost:
			snap.Hosts = results[i]
		case models.KindVM:
			snap.VMs = results[i]
		}
	}
	return snap, nil
}

// collectKind lists one kind and fetches every entity's stats. Listing and
// per-entity failures degrade the result; only cancellation and panics are
// returned as errors.
func (e *Engine) collectKind(ctx context.Context, kind models.EntityKind) (*snapshot.Bucket, error) {
	log := e.logger.With(zap.String("kind", kind.String()))

	records, err := source.List(ctx, e.src, kind)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		listFailures.WithLabelValues(kind.String()).Inc()
		log.Error("listing failed, bucket left empty", zap.Error(err))
		return snapshot.NewBucketBuilder(0).Build(), nil
	}

	limit := e.opts.MaxConcurrent
	if kind == models.KindVM {
		if len(records) > MaxVMs {
			log.Warn("vm count exceeds cap, truncating",
				zap.Int("listed", len(records)),
				zap.Int("cap", MaxVMs),
			)
			records = records[:MaxVMs]
		}
		limit = min(limit, vmConcurrency)
	}

	sets := make([]stats.StatSet, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rec := range records {
		g.Go(func() (err error) {
			defer recoverInto(&err)
			raw, ferr := source.Stats(gctx, e.src, kind, rec.UUID)
			if ferr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				fetchFailures.WithLabelValues(kind.String()).Inc()
				lvl := log.Warn
				if errors.Is(ferr, source.ErrUnauthorized) {
					lvl = log.Error
				}
				lvl("stats fetch failed, keeping entity without stats",
					zap.String("uuid", rec.UUID),
					zap.String("name", rec.Name),
					zap.Error(ferr),
				)
				sets[i] = stats.StatSet{}
				return nil
			}
			sets[i] = stats.Normalize(kind, raw, e.opts.Gates[kind])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := e.opts.Now()
	bb := snapshot.NewBucketBuilder(len(records))
	for i, rec := range records {
		ok := bb.Add(snapshot.Entity{
			UUID:        rec.UUID,
			Name:        rec.Name,
			Stats:       sets[i],
			LastUpdated: now,
		})
		if !ok {
			log.Warn("duplicate or empty uuid dropped", zap.String("uuid", rec.UUID), zap.String("name", rec.Name))
		}
	}
	return bb.Build(), nil
}
