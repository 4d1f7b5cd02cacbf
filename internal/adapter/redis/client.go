// Package redis implements the storage and queue ports on Redis.
//
// Every client built by NewClient carries two hooks: MetricsHook counts commands and
// CircuitBreakerHook fails commands fast while Redis is unhealthy, which the result
// cache turns into misses instead of slow timeouts.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
)

// NewClient parses redisURL (e.g. "redis://localhost:6379/0"), installs the hooks
// and verifies the connection.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewMetricsHook(m))
	rdb.AddHook(NewCircuitBreakerHook(m))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
