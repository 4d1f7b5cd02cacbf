package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// MemoryLayer keeps recently used results in process so repeated texts skip the
// shared store round-trip. Entries live for min(ttl, the layer's ttl).
type MemoryLayer struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics
}

type memoryEntry struct {
	result    domain.AnalysisResult
	expiresAt time.Time
}

func NewMemoryLayer(ttl time.Duration, clock clockwork.Clock, m *metrics.CacheMetrics) *MemoryLayer {
	return &MemoryLayer{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		clock:   clock,
		metrics: m,
	}
}

func (c *MemoryLayer) Get(key string) (domain.AnalysisResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		// expired entries stay until the eviction timer runs
		return domain.AnalysisResult{}, false
	}
	return entry.result, true
}

func (c *MemoryLayer) Set(key string, result domain.AnalysisResult, ttl time.Duration) {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{
		result:    result,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

func (c *MemoryLayer) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the current number of entries in the cache (including expired).
func (c *MemoryLayer) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired removes all expired entries from the cache and returns the count evicted.
func (c *MemoryLayer) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer starts a background goroutine that periodically evicts expired entries.
// Returns a stop function that should be called to clean up the goroutine.
func (c *MemoryLayer) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan bool)

	go func() {
		for {
			select {
			case <-ticker.Chan():
				evicted := c.EvictExpired()
				if evicted > 0 {
					slog.Debug("Evicted expired result cache entries",
						"count", evicted,
						"remaining", c.Size(),
					)
					c.metrics.Evictions.Add(float64(evicted))
				}
				c.metrics.Size.Set(float64(c.Size()))

			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
