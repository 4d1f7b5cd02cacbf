// Package cache stores analysis results keyed by text fingerprint.
//
// The cache never fails a request: store errors and undecodable payloads are logged,
// counted, and reported as a miss. Writes are last-writer-wins. Each stored entry
// records its own expiry, so no layer serves it past that instant.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "result:v2:"

	layerMemory = "memory"
	layerStore  = "store"
)

// Key builds the cache key for a fingerprint. Results computed with and without PII
// detection differ in shape, so the flag is part of the key.
func Key(fingerprint string, piiDetection bool) string {
	variant := "nopii"
	if piiDetection {
		variant = "pii"
	}
	return keyPrefix + variant + ":" + fingerprint
}

// entry is the stored form of a result. ExpiresAt is nil for entries without a ttl.
type entry struct {
	Result    domain.AnalysisResult `json:"result"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
}

type ResultCache struct {
	store   domain.KeyValueStore
	mem     *MemoryLayer
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics
	reads   singleflight.Group
}

// New builds a cache over store. mem may be nil to disable the in-process layer.
func New(store domain.KeyValueStore, mem *MemoryLayer, clock clockwork.Clock, m *metrics.CacheMetrics) *ResultCache {
	return &ResultCache{
		store:   store,
		mem:     mem,
		clock:   clock,
		metrics: m,
	}
}

func (c *ResultCache) Get(ctx context.Context, key string) (domain.AnalysisResult, bool) {
	if c.mem != nil {
		if result, ok := c.mem.Get(key); ok {
			c.metrics.Hits.WithLabelValues(layerMemory).Inc()
			return result, true
		}
		c.metrics.Misses.WithLabelValues(layerMemory).Inc()
	}

	// concurrent readers of one key share a single store round-trip
	v, _, _ := c.reads.Do(key, func() (any, error) {
		return c.readStore(ctx, key), nil
	})
	result, _ := v.(*domain.AnalysisResult)
	if result == nil {
		c.metrics.Misses.WithLabelValues(layerStore).Inc()
		return domain.AnalysisResult{}, false
	}

	c.metrics.Hits.WithLabelValues(layerStore).Inc()
	return *result, true
}

func (c *ResultCache) readStore(ctx context.Context, key string) *domain.AnalysisResult {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Result cache GET failed", "key", key, "error", err)
		c.metrics.Errors.WithLabelValues("get").Inc()
		return nil
	}
	if !ok {
		return nil
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal cached result", "key", key, "error", err)
		c.metrics.Errors.WithLabelValues("decode").Inc()
		return nil
	}

	// stores may keep an entry briefly past its ttl
	var remaining time.Duration
	if e.ExpiresAt != nil {
		remaining = e.ExpiresAt.Sub(c.clock.Now())
		if remaining <= 0 {
			return nil
		}
	}

	if c.mem != nil {
		c.mem.Set(key, e.Result, remaining)
	}
	return &e.Result
}

// Put stores result for ttl. Failures are logged, never returned.
func (c *ResultCache) Put(ctx context.Context, key string, result domain.AnalysisResult, ttl time.Duration) {
	if c.mem != nil {
		c.mem.Set(key, result, ttl)
	}

	e := entry{Result: result}
	if ttl > 0 {
		expiresAt := c.clock.Now().Add(ttl).UTC()
		e.ExpiresAt = &expiresAt
	}
	encoded, err := json.Marshal(e)
	if err != nil {
		slog.WarnContext(ctx, "Failed to marshal result for cache", "key", key, "error", err)
		c.metrics.Errors.WithLabelValues("encode").Inc()
		return
	}

	if err := c.store.Set(ctx, key, encoded, ttl); err != nil {
		slog.WarnContext(ctx, "Result cache SET failed", "key", key, "error", err)
		c.metrics.Errors.WithLabelValues("set").Inc()
	}
}

// Delete evicts key from both layers.
func (c *ResultCache) Delete(ctx context.Context, key string) {
	if c.mem != nil {
		c.mem.Invalidate(key)
	}
	if err := c.store.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "Result cache DEL failed", "key", key, "error", err)
		c.metrics.Errors.WithLabelValues("delete").Inc()
	}
}
