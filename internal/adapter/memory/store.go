// Package memory provides process-local implementations of the storage and queue
// ports, used for development, single-instance deployments and tests.
package memory

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is a mutex-guarded map with per-key expiry. Expired entries read as absent
// and are removed by EvictExpired.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   clockwork.Clock
}

var _ domain.KeyValueStore = (*Store)(nil)

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = s.newEntry(value, ttl)
	return nil
}

func (s *Store) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = s.newEntry(value, ttl)
	return true, nil
}

func (s *Store) CompareAndSwap(_ context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.live(key)
	if !ok || !bytes.Equal(current.value, old) {
		return false, nil
	}
	s.entries[key] = s.newEntry(value, ttl)
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Size returns the number of entries, including expired ones not yet evicted.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictExpired removes all expired entries and returns the count evicted.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer periodically evicts expired entries.
// Returns a stop function that should be deferred.
func (s *Store) StartEvictionTimer(interval time.Duration) func() {
	ticker := s.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := s.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired store entries", "count", evicted, "remaining", s.Size())
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

// live must be called with mu held.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok || e.expired(s.clock.Now()) {
		return entry{}, false
	}
	return e, true
}

func (s *Store) newEntry(value []byte, ttl time.Duration) entry {
	e := entry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	return e
}
