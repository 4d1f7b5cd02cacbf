package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

// Expiry is evaluated with the database clock so every worker agrees on it.
// $n::bigint is a ttl in milliseconds, 0 meaning no expiry.
const (
	liveClause = `(expires_at IS NULL OR expires_at > now())`

	getQuery = `SELECT value FROM kv_entries WHERE key = $1 AND ` + liveClause

	setQuery = `
INSERT INTO kv_entries (key, value, expires_at)
VALUES ($1, $2, CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * interval '1 millisecond' END)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	// An expired row counts as absent, so the upsert only fires over one.
	setIfAbsentQuery = `
INSERT INTO kv_entries (key, value, expires_at)
VALUES ($1, $2, CASE WHEN $3::bigint > 0 THEN now() + $3::bigint * interval '1 millisecond' END)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now()`

	compareAndSwapQuery = `
UPDATE kv_entries
SET value = $3, expires_at = CASE WHEN $4::bigint > 0 THEN now() + $4::bigint * interval '1 millisecond' END
WHERE key = $1 AND value = $2 AND ` + liveClause

	deleteQuery = `DELETE FROM kv_entries WHERE key = $1`

	deleteExpiredQuery = `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`

	scanKeysQuery = `SELECT key FROM kv_entries WHERE starts_with(key, $1) AND ` + liveClause + ` ORDER BY key`
)

// Store implements domain.KeyValueStore on the kv_entries table.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.PostgresMetrics
}

var _ domain.KeyValueStore = (*Store)(nil)

// NewStore wraps a migrated pool. m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.PostgresMetrics) *Store {
	return &Store{pool: pool, metrics: m}
}

func millis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	// sub-millisecond ttls still expire
	return max(ttl.Milliseconds(), 1)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, getQuery, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres get: %w", err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.pool.Exec(ctx, setQuery, key, value, millis(ttl)); err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

func (s *Store) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, setIfAbsentQuery, key, value, millis(ttl))
	if err != nil {
		return false, fmt.Errorf("postgres set if absent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, compareAndSwapQuery, key, old, value, millis(ttl))
	if err != nil {
		return false, fmt.Errorf("postgres compare-and-swap: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ScanKeys calls fn for every live key starting with prefix.
func (s *Store) ScanKeys(ctx context.Context, prefix string, fn func(key string) error) error {
	rows, err := s.pool.Query(ctx, scanKeysQuery, prefix)
	if err != nil {
		return fmt.Errorf("postgres scan keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("postgres scan keys: %w", err)
	}

	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpired removes rows whose expiry has passed and reports how many went.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExpiredQuery)
	if err != nil {
		return 0, fmt.Errorf("postgres delete expired: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Swept.Add(float64(tag.RowsAffected()))
	}
	return tag.RowsAffected(), nil
}

// StartExpirySweep runs DeleteExpired every interval until the returned stop
// function is called.
func (s *Store) StartExpirySweep(clock clockwork.Clock, interval time.Duration) func() {
	ticker := clock.NewTicker(interval)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				swept, err := s.DeleteExpired(ctx)
				if err != nil {
					if ctx.Err() == nil {
						slog.Error("Expired entry sweep failed", "error", err)
					}
					continue
				}
				if swept > 0 {
					slog.Debug("Swept expired entries", "count", swept)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
