// Package snapshot holds the immutable result of a collection cycle and the
// cache that hands the newest one to concurrent readers.
package snapshot

import (
	"iter"
	"time"

	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// Entity is the normalized view of a single cluster, host or VM.
type Entity struct {
	UUID        string        `json:"uuid"`
	Name        string        `json:"name"`
	Stats       stats.StatSet `json:"stats"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Bucket is an insertion-ordered set of entities keyed by UUID.
// Iteration order is the order the source listed the entities, which is
// what ordinals are derived from.
type Bucket struct {
	entities []Entity
	index    map[string]int
}

// Len returns the number of entities in the bucket. A nil bucket is empty.
func (b *Bucket) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entities)
}

// At returns the entity at the given 1-based ordinal.
func (b *Bucket) At(ordinal int) (Entity, bool) {
	if ordinal < 1 || ordinal > b.Len() {
		return Entity{}, false
	}
	return b.entities[ordinal-1], true
}

// Get returns the entity with the given UUID.
func (b *Bucket) Get(uuid string) (Entity, bool) {
	if b == nil {
		return Entity{}, false
	}
	i, ok := b.index[uuid]
	if !ok {
		return Entity{}, false
	}
	return b.entities[i], true
}

// Ordinal returns the 1-based position of uuid, or 0 when absent.
func (b *Bucket) Ordinal(uuid string) int {
	if b == nil {
		return 0
	}
	i, ok := b.index[uuid]
	if !ok {
		return 0
	}
	return i + 1
}

// All yields (ordinal, entity) pairs in insertion order.
func (b *Bucket) All() iter.Seq2[int, Entity] {
	return func(yield func(int, Entity) bool) {
		if b == nil {
			return
		}
		for i, e := range b.entities {
			if !yield(i+1, e) {
				return
			}
		}
	}
}

// BucketBuilder accumulates entities for a Bucket. It is not safe for
// concurrent use.
type BucketBuilder struct {
	b *Bucket
}

// NewBucketBuilder returns a builder sized for n entities.
func NewBucketBuilder(n int) *BucketBuilder {
	return &BucketBuilder{b: &Bucket{
		entities: make([]Entity, 0, n),
		index:    make(map[string]int, n),
	}}
}

// Add appends e. It returns false and leaves the bucket unchanged when the
// UUID is empty or already present.
func (bb *BucketBuilder) Add(e Entity) bool {
	if e.UUID == "" {
		return false
	}
	if _, dup := bb.b.index[e.UUID]; dup {
		return false
	}
	bb.b.index[e.UUID] = len(bb.b.entities)
	bb.b.entities = append(bb.b.entities, e)
	return true
}

// Build returns the finished bucket. The builder must not be used afterwards.
func (bb *BucketBuilder) Build() *Bucket {
	b := bb.b
	bb.b = nil
	return b
}

// Snapshot is one fully built collection result. It is never mutated after
// construction; the collector replaces it wholesale each cycle.
type Snapshot struct {
	Clusters           *Bucket
	Hosts              *Bucket
	VMs                *Bucket
	TakenAt            time.Time
	CollectionDuration time.Duration
	SourceHealthy      bool
	SourceVersion      string
}

// Empty returns a snapshot with no entities.
func Empty(takenAt time.Time, sourceHealthy bool) *Snapshot {
	return &Snapshot{
		Clusters:      &Bucket{},
		Hosts:         &Bucket{},
		VMs:           &Bucket{},
		TakenAt:       takenAt,
		SourceHealthy: sourceHealthy,
	}
}

// Bucket returns the bucket for kind.
func (s *Snapshot) Bucket(kind models.EntityKind) *Bucket {
	if s == nil {
		return nil
	}
	switch kind {
	case models.KindCluster:
		return s.Clusters
	case models.KindHost:
		return s.Hosts
	case models.KindVM:
		return s.VMs
	default:
		return nil
	}
}

// Counts returns the number of entities per kind.
func (s *Snapshot) Counts() map[models.EntityKind]int {
	out := make(map[models.EntityKind]int, len(models.Kinds))
	for _, k := range models.Kinds {
		out[k] = s.Bucket(k).Len()
	}
	return out
}

// Age returns how long ago the snapshot was taken relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.TakenAt)
}
