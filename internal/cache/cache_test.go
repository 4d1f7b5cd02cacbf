package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/memory"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	domain.KeyValueStore
	getFn func(ctx context.Context, key string) ([]byte, bool, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	delFn func(ctx context.Context, key string) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return m.getFn(ctx, key)
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.setFn(ctx, key, value, ttl)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	return m.delFn(ctx, key)
}

var sample = domain.AnalysisResult{
	Sentiment:  domain.SentimentPositive,
	Score:      0.93,
	Confidence: 0.93,
	Language:   "en",
}

func newMetrics() *metrics.CacheMetrics {
	return metrics.NewCacheMetrics(prometheus.NewRegistry())
}

func TestKey_DistinguishesPIIVariant(t *testing.T) {
	fp := strings.Repeat("a", 64)
	assert.Equal(t, "result:v2:pii:"+fp, Key(fp, true))
	assert.Equal(t, "result:v2:nopii:"+fp, Key(fp, false))
}

func TestResultCache_MissThenHit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	c := New(memory.NewStore(clock), nil, clock, m)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Put(ctx, "k", sample, time.Hour)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits.WithLabelValues(layerStore)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses.WithLabelValues(layerStore)))
}

func TestResultCache_ExpiresWithTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(memory.NewStore(clock), nil, clock, newMetrics())
	ctx := context.Background()

	c.Put(ctx, "k", sample, time.Hour)
	clock.Advance(time.Hour + time.Second)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_LastWriterWins(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(memory.NewStore(clock), nil, clock, newMetrics())
	ctx := context.Background()

	c.Put(ctx, "k", sample, time.Hour)
	second := sample
	second.Sentiment = domain.SentimentMixed
	c.Put(ctx, "k", second, time.Hour)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, domain.SentimentMixed, got.Sentiment)
}

func TestResultCache_StoreErrorIsMiss(t *testing.T) {
	m := newMetrics()
	store := &mockStore{
		getFn: func(context.Context, string) ([]byte, bool, error) {
			return nil, false, errors.New("connection refused")
		},
		setFn: func(context.Context, string, []byte, time.Duration) error {
			return errors.New("connection refused")
		},
	}
	c := New(store, nil, clockwork.NewFakeClock(), m)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	assert.NotPanics(t, func() { c.Put(ctx, "k", sample, time.Hour) })
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("set")))
}

func TestResultCache_CorruptPayloadIsMiss(t *testing.T) {
	m := newMetrics()
	store := &mockStore{
		getFn: func(context.Context, string) ([]byte, bool, error) {
			return []byte("{not json"), true, nil
		},
	}
	c := New(store, nil, clockwork.NewFakeClock(), m)

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("decode")))
}

func TestResultCache_MemoryLayerServesRepeatReads(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	storeReads := 0
	backing := memory.NewStore(clock)
	store := &mockStore{
		getFn: func(ctx context.Context, key string) ([]byte, bool, error) {
			storeReads++
			return backing.Get(ctx, key)
		},
		setFn: backing.Set,
	}
	c := New(store, NewMemoryLayer(30*time.Second, clock, m), clock, m)
	ctx := context.Background()

	c.Put(ctx, "k", sample, time.Hour)
	for range 3 {
		_, ok := c.Get(ctx, "k")
		require.True(t, ok)
	}
	assert.Equal(t, 0, storeReads)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Hits.WithLabelValues(layerMemory)))

	clock.Advance(31 * time.Second)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 1, storeReads)

	// store hit refilled the memory layer
	_, ok = c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 1, storeReads)
}

func TestResultCache_MemoryLayerNeverOutlivesTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	c := New(memory.NewStore(clock), NewMemoryLayer(time.Minute, clock, m), clock, m)
	ctx := context.Background()

	c.Put(ctx, "k", sample, 10*time.Second)
	clock.Advance(11 * time.Second)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_RefillNeverOutlivesStoreEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	store := memory.NewStore(clock)
	c := New(store, NewMemoryLayer(30*time.Second, clock, m), clock, m)
	ctx := context.Background()

	c.Put(ctx, "k", sample, time.Minute)

	// memory copy from Put is gone; this read refills from the store at t=40s
	clock.Advance(40 * time.Second)
	_, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits.WithLabelValues(layerStore)))

	clock.Advance(25 * time.Second)
	_, inStore, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, inStore)

	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_StaleStoreEntryIsMiss(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	// a store that keeps entries around after their ttl
	backing := memory.NewStore(clock)
	store := &mockStore{
		getFn: backing.Get,
		setFn: func(ctx context.Context, key string, value []byte, _ time.Duration) error {
			return backing.Set(ctx, key, value, 0)
		},
	}
	writer := New(store, nil, clock, m)
	reader := New(store, NewMemoryLayer(time.Minute, clock, m), clock, m)
	ctx := context.Background()

	writer.Put(ctx, "k", sample, 10*time.Second)

	clock.Advance(5 * time.Second)
	_, ok := reader.Get(ctx, "k")
	require.True(t, ok)

	// the refill from t=5s lasts only the 5s the entry had left
	clock.Advance(5 * time.Second)
	_, ok = reader.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Errors.WithLabelValues("decode")))
}

func TestResultCache_EntryWithoutTTLNeverExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(memory.NewStore(clock), nil, clock, newMetrics())
	ctx := context.Background()

	c.Put(ctx, "k", sample, 0)
	clock.Advance(365 * 24 * time.Hour)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, sample, got)
}

func TestResultCache_Delete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := newMetrics()
	c := New(memory.NewStore(clock), NewMemoryLayer(time.Minute, clock, m), clock, m)
	ctx := context.Background()

	c.Put(ctx, "k", sample, time.Hour)
	c.Delete(ctx, "k")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}
