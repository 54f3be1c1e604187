package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/internal/testutil"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

func TestCache_EmptyIsNotFresh(t *testing.T) {
	c := NewCache(testutil.NewClock().Now)
	if c.Current() != nil {
		t.Fatal("Current() on empty cache should be nil")
	}
	if c.IsFresh(time.Hour) {
		t.Error("IsFresh() on empty cache = true, want false")
	}
	if _, ok := c.Age(); ok {
		t.Error("Age() on empty cache reported ok")
	}
}

func TestCache_FreshnessWindow(t *testing.T) {
	clock := testutil.NewClock()
	c := NewCache(clock.Now)
	c.Publish(Empty(clock.Now(), true))

	if !c.IsFresh(30 * time.Second) {
		t.Fatal("IsFresh() immediately after Publish = false, want true")
	}

	clock.Advance(29 * time.Second)
	if !c.IsFresh(30 * time.Second) {
		t.Error("IsFresh() at 29s = false, want true")
	}

	clock.Advance(time.Second)
	if c.IsFresh(30 * time.Second) {
		t.Error("IsFresh() at exactly maxAge = true, want false")
	}

	if age, ok := c.Age(); !ok || age != 30*time.Second {
		t.Errorf("Age() = %v, %v; want 30s, true", age, ok)
	}
}

func TestCache_PublishReplacesAndClear(t *testing.T) {
	clock := testutil.NewClock()
	c := NewCache(clock.Now)
	first := Empty(clock.Now(), true)
	second := Empty(clock.Now(), false)

	c.Publish(first)
	c.Publish(second)
	if c.Current() != second {
		t.Error("Current() did not return the latest published snapshot")
	}

	c.Clear()
	if c.Current() != nil {
		t.Error("Current() after Clear should be nil")
	}
}

func TestCache_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	c := NewCache(nil)
	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := c.Current()
				if s == nil {
					continue
				}
				// Every published snapshot carries exactly as many hosts as clusters.
				if s.Clusters.Len() != s.Hosts.Len() {
					t.Errorf("observed partial snapshot: %d clusters, %d hosts", s.Clusters.Len(), s.Hosts.Len())
					return
				}
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		c.Publish(buildSnapshot(i))
	}
	close(done)
	wg.Wait()
}

func buildSnapshot(n int) *Snapshot {
	clusters := NewBucketBuilder(n)
	hosts := NewBucketBuilder(n)
	for i := 0; i < n; i++ {
		id := testutil.EntityUUID(models.KindCluster, i)
		clusters.Add(Entity{UUID: id, Name: "c", Stats: stats.StatSet{}})
		hosts.Add(Entity{UUID: testutil.EntityUUID(models.KindHost, i), Name: "h", Stats: stats.StatSet{}})
	}
	return &Snapshot{
		Clusters: clusters.Build(),
		Hosts:    hosts.Build(),
		VMs:      &Bucket{},
		TakenAt:  time.Now(),
	}
}
