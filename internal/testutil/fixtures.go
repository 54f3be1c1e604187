package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// EntityUUID returns a stable UUID for the i-th entity of kind.
func EntityUUID(kind models.EntityKind, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s-%d", kind, i)).String()
}

// NewEntities returns n entity records of kind named "<kind>-<i>".
func NewEntities(kind models.EntityKind, n int) []models.EntityRecord {
	out := make([]models.EntityRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.EntityRecord{
			UUID: EntityUUID(kind, i),
			Name: fmt.Sprintf("%s-%d", kind, i),
		})
	}
	return out
}

// FakeSource is a scriptable telemetry source. Populate the exported maps
// before handing it to the code under test; they must not be changed while
// calls are in flight.
type FakeSource struct {
	Entities map[models.EntityKind][]models.EntityRecord
	Stats    map[string]models.RawStats
	ListErr  map[models.EntityKind]error
	StatsErr map[string]error

	// Block, when non-nil, makes every stats call wait until it is closed or
	// the call's context ends.
	Block chan struct{}

	// StatsHook, when set, runs at the start of every stats call.
	StatsHook func(uuid string)

	IsHealthy bool
	Version   string

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

// NewFakeSource returns a healthy FakeSource with no entities.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Entities:  make(map[models.EntityKind][]models.EntityRecord),
		Stats:     make(map[string]models.RawStats),
		ListErr:   make(map[models.EntityKind]error),
		StatsErr:  make(map[string]error),
		IsHealthy: true,
		Version:   "v3",
		calls:     make(map[string]int),
	}
}

func (f *FakeSource) ListClusters(ctx context.Context) ([]models.EntityRecord, error) {
	return f.list(ctx, models.KindCluster)
}

func (f *FakeSource) ListHosts(ctx context.Context) ([]models.EntityRecord, error) {
	return f.list(ctx, models.KindHost)
}

func (f *FakeSource) ListVMs(ctx context.Context) ([]models.EntityRecord, error) {
	return f.list(ctx, models.KindVM)
}

func (f *FakeSource) ClusterStats(ctx context.Context, id string) (models.RawStats, error) {
	return f.stats(ctx, "cluster_stats", id)
}

func (f *FakeSource) HostStats(ctx context.Context, id string) (models.RawStats, error) {
	return f.stats(ctx, "host_stats", id)
}

func (f *FakeSource) VMStats(ctx context.Context, id string) (models.RawStats, error) {
	return f.stats(ctx, "vm_stats", id)
}

func (f *FakeSource) Healthy() bool { return f.IsHealthy }

func (f *FakeSource) APIVersion() string { return f.Version }

// Calls returns how often the named operation ran, e.g. "list_vm" or
// "host_stats".
func (f *FakeSource) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// MaxInFlight returns the highest number of concurrent stats calls seen.
func (f *FakeSource) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *FakeSource) list(ctx context.Context, kind models.EntityKind) ([]models.EntityRecord, error) {
	f.record("list_" + kind.String())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ListErr[kind]; err != nil {
		return nil, err
	}
	return f.Entities[kind], nil
}

func (f *FakeSource) stats(ctx context.Context, op, id string) (models.RawStats, error) {
	f.record(op)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.StatsHook != nil {
		f.StatsHook(id)
	}
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.StatsErr[id]; err != nil {
		return nil, err
	}
	return f.Stats[id], nil
}

func (f *FakeSource) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}
