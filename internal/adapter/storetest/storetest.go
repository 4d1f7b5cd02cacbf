// Package storetest holds the behavioural contract every domain.KeyValueStore
// implementation is tested against.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness builds a fresh, empty store. Advance moves the store's notion of time
// forward; real backends sleep.
type Harness struct {
	New     func(t *testing.T) domain.KeyValueStore
	Advance func(d time.Duration)
	// TTL is the shortest expiry the backend honours reliably.
	TTL time.Duration
}

func Run(t *testing.T, h Harness) {
	t.Run("get missing", func(t *testing.T) { testGetMissing(t, h) })
	t.Run("set then get", func(t *testing.T) { testSetGet(t, h) })
	t.Run("set overwrites", func(t *testing.T) { testOverwrite(t, h) })
	t.Run("expiry", func(t *testing.T) { testExpiry(t, h) })
	t.Run("set if absent", func(t *testing.T) { testSetIfAbsent(t, h) })
	t.Run("set if absent after expiry", func(t *testing.T) { testSetIfAbsentAfterExpiry(t, h) })
	t.Run("compare and swap", func(t *testing.T) { testCompareAndSwap(t, h) })
	t.Run("compare and swap missing", func(t *testing.T) { testCompareAndSwapMissing(t, h) })
	t.Run("concurrent compare and swap", func(t *testing.T) { testConcurrentCAS(t, h) })
	t.Run("concurrent set if absent", func(t *testing.T) { testConcurrentSetIfAbsent(t, h) })
	t.Run("delete", func(t *testing.T) { testDelete(t, h) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, h.New(t).Ping(context.Background())) })
}

func testGetMissing(t *testing.T, h Harness) {
	s := h.New(t)
	val, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func testSetGet(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte(`{"sentiment":"POSITIVE"}`), 0))

	val, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"sentiment":"POSITIVE"}`, string(val))
}

func testOverwrite(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("one"), 0))
	require.NoError(t, s.Set(ctx, "k", []byte("two"), 0))

	val, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(val))
}

func testExpiry(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("v"), h.TTL))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)

	h.Advance(h.TTL + h.TTL/2)

	_, ok, err = s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "entry must read as absent after its ttl")

	_, ok, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testSetIfAbsent(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	wrote, err := s.SetIfAbsent(ctx, "job", []byte("first"), 0)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.SetIfAbsent(ctx, "job", []byte("second"), 0)
	require.NoError(t, err)
	assert.False(t, wrote)

	val, _, err := s.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, "first", string(val))
}

func testSetIfAbsentAfterExpiry(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	_, err := s.SetIfAbsent(ctx, "job", []byte("first"), h.TTL)
	require.NoError(t, err)
	h.Advance(h.TTL + h.TTL/2)

	wrote, err := s.SetIfAbsent(ctx, "job", []byte("second"), 0)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func testCompareAndSwap(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "job", []byte("v1"), 0))

	swapped, err := s.CompareAndSwap(ctx, "job", []byte("stale"), []byte("v2"), 0)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.CompareAndSwap(ctx, "job", []byte("v1"), []byte("v2"), 0)
	require.NoError(t, err)
	assert.True(t, swapped)

	val, _, err := s.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(val))
}

func testCompareAndSwapMissing(t *testing.T, h Harness) {
	s := h.New(t)
	swapped, err := s.CompareAndSwap(context.Background(), "nope", []byte("v1"), []byte("v2"), 0)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func testConcurrentCAS(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "job", []byte("PENDING"), 0))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSwap(ctx, "job", []byte("PENDING"), []byte(fmt.Sprintf("PROCESSING-%d", i)), 0)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func testConcurrentSetIfAbsent(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SetIfAbsent(ctx, "job", []byte(fmt.Sprintf("v%d", i)), 0)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func testDelete(t *testing.T, h Harness) {
	s := h.New(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
