package domain

import (
	"context"
	"time"
)

// KeyValueStore is the persistence contract shared by the result cache and the job store.
// A ttl <= 0 stores without expiry. Expired entries read as absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent writes only when key holds no live value and reports whether it wrote.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces the value only when it still equals old.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
