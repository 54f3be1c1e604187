package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/testutil"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

func newWorker(t *testing.T, src *testutil.FakeSource, interval time.Duration) (*Worker, *snapshot.Cache) {
	t.Helper()
	cfg := config.Default()
	cfg.Daemon.CollectionInterval = interval
	cfg.Performance.EnableMetricsCache = false
	cache := snapshot.NewCache(nil)
	w := NewWorker(src, cache)
	require.NoError(t, w.Init(cfg, zap.NewNop()))
	return w, cache
}

func TestWorker_CollectsOnStartAndInterval(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindCluster, 2, models.RawStats{})
	w, cache := newWorker(t, src, 20*time.Millisecond)

	assert.False(t, w.Health(context.Background()).Healthy)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	require.Eventually(t, func() bool { return src.Calls("list_cluster") >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NotNil(t, cache.Current())
	assert.Equal(t, 2, cache.Current().Clusters.Len())
	assert.True(t, w.Health(context.Background()).Healthy)

	assert.Error(t, w.Start(context.Background()), "second Start must fail")
}

func TestWorker_StopsMidCollectionWithinDeadline(t *testing.T) {
	src := testutil.NewFakeSource()
	populate(src, models.KindHost, 5, models.RawStats{})
	src.Block = make(chan struct{})
	defer close(src.Block)
	w, _ := newWorker(t, src, time.Hour)

	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return src.Calls("host_stats") > 0 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, w.Stop(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)

	// Stop is idempotent.
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWorker_InitRejectsZeroInterval(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.CollectionInterval = 0
	w := NewWorker(testutil.NewFakeSource(), snapshot.NewCache(nil))
	assert.Error(t, w.Init(cfg, zap.NewNop()))
}

func TestWorker_Routes(t *testing.T) {
	src := testutil.NewFakeSource()
	w, cache := newWorker(t, src, time.Minute)
	w.Engine().Collect(context.Background())
	require.NotNil(t, cache.Current())

	mux := http.NewServeMux()
	for _, r := range w.Routes() {
		mux.HandleFunc(r.Method+" "+r.Path, r.Handler)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ps PerfStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	assert.Equal(t, uint64(1), ps.Collections)
	assert.Len(t, ps.RecentSeconds, 1)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, cache.Current())
}
