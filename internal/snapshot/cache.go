package snapshot

import (
	"sync/atomic"
	"time"
)

// Cache holds the most recently published snapshot. Publish is a single
// pointer store and Current a single pointer load, so readers resolving OIDs
// never contend with the collector.
type Cache struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewCache returns an empty cache. A nil clock defaults to time.Now.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{now: now}
}

// Current returns the latest snapshot or nil when nothing was published yet.
// The returned snapshot must be treated as read-only.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Publish makes s the current snapshot.
func (c *Cache) Publish(s *Snapshot) {
	c.current.Store(s)
}

// Clear drops the current snapshot.
func (c *Cache) Clear() {
	c.current.Store(nil)
}

// IsFresh reports whether the current snapshot is younger than maxAge.
func (c *Cache) IsFresh(maxAge time.Duration) bool {
	s := c.current.Load()
	if s == nil {
		return false
	}
	return s.Age(c.now()) < maxAge
}

// Age returns the age of the current snapshot and false when empty.
func (c *Cache) Age() (time.Duration, bool) {
	s := c.current.Load()
	if s == nil {
		return 0, false
	}
	return s.Age(c.now()), true
}
