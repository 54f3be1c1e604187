package oid

import (
	"sort"
	"sync/atomic"

	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// Subtree arcs below the base OID.
const (
	SubtreeCluster uint32 = 1
	SubtreeHost    uint32 = 2
	SubtreeVM      uint32 = 3
	SubtreeSystem  uint32 = 99

	// tableArc sits between a subtree and its ordinals.
	tableArc uint32 = 1
)

// System metric ids under <base>.99.1.
const (
	SysVersion uint32 = iota + 1
	SysSourceHealthy
	SysCollectionDuration
	SysLastUpdate
	SysClusterCount
	SysHostCount
	SysVMCount
)

// Subtree returns the subtree arc for kind.
func Subtree(kind models.EntityKind) uint32 {
	switch kind {
	case models.KindCluster:
		return SubtreeCluster
	case models.KindHost:
		return SubtreeHost
	case models.KindVM:
		return SubtreeVM
	default:
		return 0
	}
}

// Entry is one resolvable variable.
type Entry struct {
	OID   OID
	Value Value
}

// view is the sorted variable list derived from one snapshot.
type view struct {
	snap    *snapshot.Snapshot
	entries []Entry
}

// Index resolves OIDs against whatever snapshot the cache currently holds.
// Each lookup takes the freshest snapshot; the sorted view for a snapshot is
// built once on first use and reused until the collector publishes again.
type Index struct {
	base    OID
	cache   *snapshot.Cache
	version string
	view    atomic.Pointer[view]
}

// NewIndex returns an index rooted at base. version is reported under the
// system subtree.
func NewIndex(base OID, cache *snapshot.Cache, version string) *Index {
	return &Index{base: base.Append(), cache: cache, version: version}
}

// Base returns a copy of the root OID.
func (x *Index) Base() OID { return x.base.Append() }

// EntityOID returns <base>.<subtree>.1.<ordinal>.<metricID>.
func (x *Index) EntityOID(kind models.EntityKind, ordinal int, metricID uint32) OID {
	return x.base.Append(Subtree(kind), tableArc, uint32(ordinal), metricID)
}

// SystemOID returns <base>.99.1.<id>.
func (x *Index) SystemOID(id uint32) OID {
	return x.base.Append(SubtreeSystem, tableArc, id)
}

// Get returns the value bound to exactly o.
func (x *Index) Get(o OID) (Value, bool) {
	entries := x.current().entries
	i, found := sort.Find(len(entries), func(i int) int { return Compare(o, entries[i].OID) })
	if !found {
		return Value{}, false
	}
	return entries[i].Value, true
}

// GetNext returns the first variable whose OID sorts strictly after o.
func (x *Index) GetNext(o OID) (OID, Value, bool) {
	entries := x.current().entries
	i := sort.Search(len(entries), func(i int) bool { return Compare(entries[i].OID, o) > 0 })
	if i == len(entries) {
		return nil, Value{}, false
	}
	e := entries[i]
	return e.OID.Append(), e.Value, true
}

// Entries returns every variable of the current snapshot in walk order. The
// slice must not be modified.
func (x *Index) Entries() []Entry {
	return x.current().entries
}

// Len returns the number of resolvable variables.
func (x *Index) Len() int {
	return len(x.current().entries)
}

func (x *Index) current() *view {
	snap := x.cache.Current()
	if v := x.view.Load(); v != nil && v.snap == snap {
		return v
	}
	v := &view{snap: snap, entries: x.build(snap)}
	// Concurrent builders for one snapshot produce equal views.
	old := x.view.Load()
	if old == nil || old.snap != snap {
		x.view.CompareAndSwap(old, v)
	}
	return v
}

// build lists entries in ascending OID order. Subtrees, ordinals and metric
// ids are all emitted in increasing order, so no sort is needed.
func (x *Index) build(snap *snapshot.Snapshot) []Entry {
	var entries []Entry
	for _, kind := range models.Kinds {
		defs := stats.Definitions(kind)
		for ordinal, e := range snap.Bucket(kind).All() {
			for _, d := range defs {
				v, ok := e.Stats.Get(d.Key)
				if !ok {
					continue
				}
				entries = append(entries, Entry{
					OID:   x.EntityOID(kind, ordinal, d.ID),
					Value: Encode(v),
				})
			}
		}
	}
	return append(entries, x.system(snap)...)
}

func (x *Index) system(snap *snapshot.Snapshot) []Entry {
	version := x.version
	var (
		healthy  bool
		duration float64
		updated  int64
	)
	if snap != nil {
		if snap.SourceVersion != "" {
			version += " (api " + snap.SourceVersion + ")"
		}
		healthy = snap.SourceHealthy
		duration = snap.CollectionDuration.Seconds()
		if !snap.TakenAt.IsZero() {
			updated = snap.TakenAt.Unix()
		}
	}
	return []Entry{
		{x.SystemOID(SysVersion), Encode(stats.String(version))},
		{x.SystemOID(SysSourceHealthy), Encode(stats.Bool(healthy))},
		{x.SystemOID(SysCollectionDuration), EncodeFloat(duration)},
		{x.SystemOID(SysLastUpdate), Encode(stats.Int(updated))},
		{x.SystemOID(SysClusterCount), Encode(stats.Int(int64(snap.Bucket(models.KindCluster).Len())))},
		{x.SystemOID(SysHostCount), Encode(stats.Int(int64(snap.Bucket(models.KindHost).Len())))},
		{x.SystemOID(SysVMCount), Encode(stats.Int(int64(snap.Bucket(models.KindVM).Len())))},
	}
}
