package collector

import (
	"sync"
	"time"
)

// historySize is how many collection durations are retained.
const historySize = 10

// History keeps the most recent successful collection durations along with
// lifetime counters.
type History struct {
	mu        sync.Mutex
	durations []time.Duration
	next      int
	count     uint64
	failures  uint64
	last      time.Time
}

// Record adds a successful collection that finished at at.
func (h *History) Record(d time.Duration, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.durations) < historySize {
		h.durations = append(h.durations, d)
	} else {
		h.durations[h.next] = d
	}
	h.next = (h.next + 1) % historySize
	h.count++
	h.last = at
}

// RecordFailure counts a cycle that served a previous snapshot.
func (h *History) RecordFailure() {
	h.mu.Lock()
	h.failures++
	h.mu.Unlock()
}

// Len returns how many durations are retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.durations)
}

// Durations returns the retained durations, oldest first.
func (h *History) Durations() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, 0, len(h.durations))
	if len(h.durations) < historySize {
		return append(out, h.durations...)
	}
	out = append(out, h.durations[h.next:]...)
	return append(out, h.durations[:h.next]...)
}

// PerfStats summarizes collector performance.
type PerfStats struct {
	Collections    uint64    `json:"collections"`
	Failures       uint64    `json:"failures"`
	AvgSeconds     float64   `json:"avg_collection_seconds"`
	MinSeconds     float64   `json:"min_collection_seconds"`
	MaxSeconds     float64   `json:"max_collection_seconds"`
	RecentSeconds  []float64 `json:"recent_collection_seconds"`
	LastCollection time.Time `json:"last_collection,omitzero"`
	CacheEnabled   bool      `json:"cache_enabled"`
	CacheValid     bool      `json:"cache_valid"`
}

// Stats computes the duration summary. Cache fields are left for the
// engine to fill in.
func (h *History) Stats() PerfStats {
	recent := h.Durations()

	h.mu.Lock()
	ps := PerfStats{
		Collections:    h.count,
		Failures:       h.failures,
		LastCollection: h.last,
		RecentSeconds:  make([]float64, 0, len(recent)),
	}
	h.mu.Unlock()

	if len(recent) == 0 {
		return ps
	}
	minD, maxD := recent[0], recent[0]
	var sum time.Duration
	for _, d := range recent {
		sum += d
		minD = min(minD, d)
		maxD = max(maxD, d)
		ps.RecentSeconds = append(ps.RecentSeconds, d.Seconds())
	}
	ps.AvgSeconds = (sum / time.Duration(len(recent))).Seconds()
	ps.MinSeconds = minD.Seconds()
	ps.MaxSeconds = maxD.Seconds()
	return ps
}
