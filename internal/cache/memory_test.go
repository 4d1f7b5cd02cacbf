package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLayer_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	layer := NewMemoryLayer(10*time.Second, clock, newMetrics())

	layer.Set("k", sample, 0)

	_, hit := layer.Get("k")
	assert.True(t, hit, "Should hit immediately after set")

	clock.Advance(9 * time.Second)
	_, hit = layer.Get("k")
	assert.True(t, hit, "Should still hit at 9 seconds")

	clock.Advance(2 * time.Second)
	_, hit = layer.Get("k")
	assert.False(t, hit, "Should miss after TTL expires")
}

func TestMemoryLayer_ShorterEntryTTLWins(t *testing.T) {
	clock := clockwork.NewFakeClock()
	layer := NewMemoryLayer(time.Minute, clock, newMetrics())

	layer.Set("k", sample, 5*time.Second)
	clock.Advance(6 * time.Second)

	_, hit := layer.Get("k")
	assert.False(t, hit)
}

func TestMemoryLayer_EvictExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	layer := NewMemoryLayer(10*time.Second, clock, newMetrics())

	for i := range 5 {
		layer.Set(fmt.Sprintf("k%d", i), sample, 0)
	}
	clock.Advance(5 * time.Second)
	layer.Set("fresh", sample, 0)
	clock.Advance(6 * time.Second)

	assert.Equal(t, 5, layer.EvictExpired())
	assert.Equal(t, 1, layer.Size())
}

func TestMemoryLayer_EvictionTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	layer := NewMemoryLayer(10*time.Second, clock, m)
	layer.Set("k", sample, 0)

	stop := layer.StartEvictionTimer(time.Minute)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	assert.Eventually(t, func() bool { return layer.Size() == 0 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.Evictions) == 1 }, time.Second, 10*time.Millisecond)
}

func TestMemoryLayer_ConcurrentAccess(t *testing.T) {
	layer := NewMemoryLayer(time.Minute, clockwork.NewFakeClock(), newMetrics())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			layer.Set(key, domain.AnalysisResult{Score: float64(i)}, 0)
			_, _ = layer.Get(key)
			layer.Invalidate(key)
		}()
	}
	wg.Wait()
}
