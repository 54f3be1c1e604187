package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/internal/testutil"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

func newEngine(t *testing.T, src *testutil.FakeSource, opts Options) (*Engine, *snapshot.Cache) {
	t.Helper()
	clock := testutil.NewClock()
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	cache := snapshot.NewCache(opts.Now)
	return NewEngine(src, cache, opts, zap.NewNop()), cache
}

func populate(src *testutil.FakeSource, kind models.EntityKind, n int, raw models.RawStats) []models.EntityRecord {
	recs := testutil.NewEntities(kind, n)
	src.Entities[kind] = recs
	for _, r := range recs {
		src.Stats[r.UUID] = raw
	}
	return recs
}

func TestCollect_PartialFailureKeepsEntities(t *testing.T) {
	src := testutil.NewFakeSource()
	recs := populate(src, models.KindCluster, 3, models.RawStats{"hypervisor_cpu_usage_ppm": 453000})
	src.StatsErr[recs[1].UUID] = errors.New("timeout")
	e, _ := newEngine(t, src, Options{})

	snap := e.Collect(context.Background())

	require.Equal(t, 3, snap.Clusters.Len())
	for ord, ent := range snap.Clusters.All() {
		assert.Equal(t, recs[ord-1].UUID, ent.UUID, "listing order preserved")
		if ord == 2 {
			assert.Empty(t, ent.Stats)
			continue
		}
		cpu, ok := ent.Stats.Get("cpu_usage_percent")
		require.True(t, ok)
		assert.Equal(t, 45.3, cpu.AsFloat())
	}
	assert.True(t, snap.SourceHealthy)
	assert.Equal(t, "v3", snap.SourceVersion)
}

func TestCollect_ListFailureEmptiesOnlyThatKind(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindCluster, 1, models.RawStats{})
	populate(src, models.KindHost, 2, models.RawStats{})
	src.ListErr[models.KindCluster] = errors.New("503")
	e, _ := newEngine(t, src, Options{})

	snap := e.Collect(context.Background())

	assert.Equal(t, 0, snap.Clusters.Len())
	assert.Equal(t, 2, snap.Hosts.Len())
	assert.Equal(t, 1, e.History().Len(), "degraded cycle still counts as a collection")
}

func TestCollect_CacheHitSkipsSource(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindCluster, 1, models.RawStats{})
	clock := testutil.NewClock()
	e, cache := newEngine(t, src, Options{CacheEnabled: true, CacheTimeout: 30 * time.Second, Now: clock.Now})

	first := e.Collect(context.Background())
	require.Equal(t, 1, src.Calls("list_cluster"))

	clock.Advance(10 * time.Second)
	second := e.Collect(context.Background())
	assert.Same(t, first, second)
	assert.Equal(t, 1, src.Calls("list_cluster"))
	assert.True(t, e.PerfStats().CacheValid)

	clock.Advance(25 * time.Second)
	third := e.Collect(context.Background())
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, src.Calls("list_cluster"))
	assert.Same(t, third, cache.Current())
}

func TestCollect_CacheDisabledAlwaysCollects(t *testing.T) {
	src := testutil.NewFakeSource()
	e, _ := newEngine(t, src, Options{CacheEnabled: false, CacheTimeout: time.Hour})

	e.Collect(context.Background())
	e.Collect(context.Background())
	assert.Equal(t, 2, src.Calls("list_host"))
	assert.False(t, e.PerfStats().CacheValid)
}

func TestCollect_VMDisabledNeverListsVMs(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindVM, 3, models.RawStats{})
	e, _ := newEngine(t, src, Options{VMEnabled: false})

	snap := e.Collect(context.Background())

	assert.Equal(t, 0, src.Calls("list_vm"))
	assert.Equal(t, 0, src.Calls("vm_stats"))
	assert.Equal(t, 0, snap.VMs.Len())
}

func TestCollect_VMCapAndConcurrency(t *testing.T) {
	src := testutil.NewFakeSource()
	recs := populate(src, models.KindVM, 120, models.RawStats{"power_state": "ON"})
	src.StatsHook = func(string) { time.Sleep(2 * time.Millisecond) }
	e, _ := newEngine(t, src, Options{VMEnabled: true, MaxConcurrent: 20})

	snap := e.Collect(context.Background())

	require.Equal(t, MaxVMs, snap.VMs.Len())
	last, ok := snap.VMs.At(MaxVMs)
	require.True(t, ok)
	assert.Equal(t, recs[MaxVMs-1].UUID, last.UUID, "first VMs in listing order are kept")
	assert.Equal(t, MaxVMs, src.Calls("vm_stats"))
	assert.LessOrEqual(t, src.MaxInFlight(), vmConcurrency)
}

func TestCollect_BoundedConcurrency(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindHost, 30, models.RawStats{})
	src.StatsHook = func(string) { time.Sleep(2 * time.Millisecond) }
	e, _ := newEngine(t, src, Options{MaxConcurrent: 3})

	e.Collect(context.Background())

	assert.Equal(t, 30, src.Calls("host_stats"))
	// Cluster and host kinds run side by side, each within the limit.
	assert.LessOrEqual(t, src.MaxInFlight(), 2*3)
}

func TestCollect_GatesApplied(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindCluster, 1, models.RawStats{
		"hypervisor_cpu_usage_ppm": 100000,
		"controller_num_iops":      50,
	})
	gates := map[models.EntityKind]stats.Enabled{
		models.KindCluster: {"cpu_usage": true, "iops": false},
	}
	e, _ := newEngine(t, src, Options{Gates: gates})

	snap := e.Collect(context.Background())
	ent, ok := snap.Clusters.At(1)
	require.True(t, ok)
	_, hasCPU := ent.Stats.Get("cpu_usage_percent")
	_, hasIOPS := ent.Stats.Get("iops")
	assert.True(t, hasCPU)
	assert.False(t, hasIOPS)
}

func TestCollect_PanicServesPreviousSnapshot(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindCluster, 2, models.RawStats{})
	e, cache := newEngine(t, src, Options{})

	prev := e.Collect(context.Background())
	require.Equal(t, 2, prev.Clusters.Len())

	src.StatsHook = func(string) { panic("corrupt payload") }
	got := e.Collect(context.Background())

	assert.Same(t, prev, got)
	assert.Same(t, prev, cache.Current())
	assert.Equal(t, uint64(1), e.PerfStats().Failures)
	assert.Equal(t, 1, e.History().Len())
}

func TestCollect_CancelledWithoutPreviousIsEmptyUnhealthy(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindCluster, 2, models.RawStats{})
	e, cache := newEngine(t, src, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := e.Collect(ctx)

	require.NotNil(t, snap)
	assert.False(t, snap.SourceHealthy)
	assert.Equal(t, 0, snap.Clusters.Len())
	assert.Same(t, snap, cache.Current())
	assert.Equal(t, 0, e.History().Len())
}

func TestCollect_DeadlineMidCycle(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindHost, 4, models.RawStats{})
	src.Block = make(chan struct{})
	defer close(src.Block)
	e, _ := newEngine(t, src, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	snap := e.Collect(ctx)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, snap.SourceHealthy)
}

func TestHistory_KeepsLastTen(t *testing.T) {
	h := &History{}
	at := time.Now()
	for i := 1; i <= 15; i++ {
		h.Record(time.Duration(i)*time.Second, at)
	}

	d := h.Durations()
	require.Len(t, d, historySize)
	assert.Equal(t, 6*time.Second, d[0])
	assert.Equal(t, 15*time.Second, d[historySize-1])

	ps := h.Stats()
	assert.Equal(t, uint64(15), ps.Collections)
	assert.Equal(t, 6.0, ps.MinSeconds)
	assert.Equal(t, 15.0, ps.MaxSeconds)
	assert.Equal(t, 10.5, ps.AvgSeconds)
}

func TestHistory_Empty(t *testing.T) {
	ps := (&History{}).Stats()
	assert.Zero(t, ps.Collections)
	assert.Zero(t, ps.AvgSeconds)
	assert.Empty(t, ps.RecentSeconds)
}
