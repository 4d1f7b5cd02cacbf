// Command reap-stuck-jobs fails asynchronous jobs that a crashed worker left in
// PROCESSING. Job delivery is at-most-once, so nothing else ever moves them on.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/postgres"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/redis"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/jobs"
	"github.com/roberjo/AuraStream-sub000/internal/platform/logging"
)

const keyPrefix = "aurastream:"

// keyStore is a job backend that can enumerate its keys.
type keyStore interface {
	domain.KeyValueStore
	ScanKeys(ctx context.Context, prefix string, fn func(key string) error) error
}

type summary struct {
	scanned int
	stuck   int
	failed  int
}

func main() {
	var (
		backend     = flag.String("backend", os.Getenv("JOB_BACKEND"), "Job backend: redis or postgres (or set JOB_BACKEND env)")
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		maxAge      = flag.Duration("max-age", 30*time.Minute, "Fail jobs PROCESSING for at least this long")
		dryRun      = flag.Bool("dry-run", false, "Dry run mode (report only)")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, *backend, *redisURL, *databaseURL)
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	defer closeStore()

	start := time.Now()
	s, err := reap(ctx, store, jobs.NewStore(store, clockwork.NewRealClock(), 0, metrics.NewJobMetrics(prometheus.NewRegistry())), *maxAge, *dryRun)
	if err != nil {
		log.Fatalf("Reap failed: %v", err)
	}

	slog.Info("Reap summary",
		"scanned", s.scanned,
		"stuck", s.stuck,
		"failed", s.failed,
		"dry_run", *dryRun,
		"duration_ms", time.Since(start).Milliseconds())
}

func openStore(ctx context.Context, backend, redisURL, databaseURL string) (keyStore, func(), error) {
	switch backend {
	case "redis":
		if redisURL == "" {
			return nil, nil, fmt.Errorf("redis URL required (--redis or REDIS_URL env)")
		}
		rdb, err := redis.NewClient(ctx, redisURL, metrics.NewRedisMetrics(prometheus.NewRegistry()))
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to Redis", "url", sanitizeURL(redisURL))
		return redis.NewStore(rdb, keyPrefix), func() { _ = rdb.Close() }, nil
	case "postgres":
		if databaseURL == "" {
			return nil, nil, fmt.Errorf("database URL required (--database or DATABASE_URL env)")
		}
		pool, err := postgres.Connect(ctx, databaseURL, nil)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool, nil), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("backend must be redis or postgres, got %q", backend)
	}
}

// reap walks every job record and fails the stuck ones. A record that fails to
// load is logged and skipped.
func reap(ctx context.Context, keys keyStore, store *jobs.Store, maxAge time.Duration, dryRun bool) (summary, error) {
	var s summary
	now := time.Now()

	err := keys.ScanKeys(ctx, jobs.KeyPrefix, func(key string) error {
		id, ok := jobs.IDFromKey(key)
		if !ok {
			return nil
		}
		s.scanned++

		if dryRun {
			job, found, err := store.Get(ctx, id)
			if err != nil {
				slog.Warn("Failed to load job", "job_id", id, "error", err)
				return nil
			}
			if found && jobs.Stuck(job, now, maxAge) {
				s.stuck++
				slog.Info("Would fail stuck job", "job_id", id, "started_at", job.StartedAt.Format(time.RFC3339))
			}
			return nil
		}

		failed, err := store.FailStuck(ctx, id, maxAge)
		if err != nil {
			slog.Warn("Failed to reap job", "job_id", id, "error", err)
			return nil
		}
		if failed {
			s.stuck++
			s.failed++
			slog.Info("Failed stuck job", "job_id", id)
		}
		return nil
	})
	return s, err
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
