package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/comprehend"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/httpserver"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/lexicon"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/memory"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/openai"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/postgres"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/redis"
	"github.com/roberjo/AuraStream-sub000/internal/analysis"
	"github.com/roberjo/AuraStream-sub000/internal/app"
	"github.com/roberjo/AuraStream-sub000/internal/cache"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
	"github.com/roberjo/AuraStream-sub000/internal/jobs"
	"github.com/roberjo/AuraStream-sub000/internal/pii"
	"github.com/roberjo/AuraStream-sub000/internal/platform/config"
	"github.com/roberjo/AuraStream-sub000/internal/platform/logging"
	"github.com/roberjo/AuraStream-sub000/internal/platform/version"
	"github.com/roberjo/AuraStream-sub000/internal/resilience"
	"github.com/roberjo/AuraStream-sub000/internal/worker"
)

const (
	keyPrefix       = "aurastream:"
	queueKey        = keyPrefix + "jobs:queue"
	shutdownTimeout = 10 * time.Second
)

// cleanup collects teardown steps, run in reverse order.
type cleanup []func()

func (c *cleanup) add(f func()) { *c = append(*c, f) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

type backends struct {
	cacheStore domain.KeyValueStore
	jobStore   domain.KeyValueStore
	queue      domain.JobQueue
	checks     []httpserver.HealthCheck
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, reg prometheus.Registerer) (*pgxpool.Pool, *metrics.PostgresMetrics) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := metrics.NewPostgresMetrics(reg)
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, m)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool, m
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func pingCheck(name string, store domain.KeyValueStore) httpserver.HealthCheck {
	return httpserver.HealthCheck{Name: name, Check: store.Ping}
}

// setupBackends picks the key-value stores and the queue named by the config.
func setupBackends(cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer, done *cleanup) backends {
	var b backends

	var rdb *goredis.Client
	if cfg.NeedsRedis() {
		rdb = setupRedis(cfg, reg)
		done.add(func() { _ = rdb.Close() })
	}

	switch cfg.CacheBackend {
	case config.BackendRedis:
		b.cacheStore = redis.NewStore(rdb, keyPrefix)
	default:
		store := memory.NewStore(clock)
		done.add(store.StartEvictionTimer(cfg.CacheEvictionInterval))
		b.cacheStore = store
	}

	switch cfg.JobBackend {
	case config.BackendPostgres:
		pool, m := setupDB(cfg, reg)
		done.add(pool.Close)
		store := postgres.NewStore(pool, m)
		done.add(store.StartExpirySweep(clock, cfg.DBSweepInterval))
		b.jobStore = store
	case config.BackendRedis:
		b.jobStore = redis.NewStore(rdb, keyPrefix)
	default:
		// jobs and cache entries use disjoint key prefixes
		if mem, ok := b.cacheStore.(*memory.Store); ok {
			b.jobStore = mem
		} else {
			store := memory.NewStore(clock)
			done.add(store.StartEvictionTimer(cfg.CacheEvictionInterval))
			b.jobStore = store
		}
	}

	switch cfg.QueueBackend {
	case config.BackendRedis:
		b.queue = redis.NewQueue(rdb, queueKey, cfg.QueueSize)
	default:
		b.queue = memory.NewQueue(cfg.QueueSize)
	}

	b.checks = []httpserver.HealthCheck{
		pingCheck("cache_store", b.cacheStore),
		pingCheck("job_store", b.jobStore),
	}
	return b
}

func setupAnalyzer(cfg *config.Config) domain.Analyzer {
	switch cfg.Analyzer {
	case config.AnalyzerComprehend:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		a, err := comprehend.NewFromConfig(ctx, cfg.AWSRegion, cfg.DefaultLanguage)
		if err != nil {
			slog.Error("Failed to create Comprehend client", "error", err)
			os.Exit(1)
		}
		return a
	case config.AnalyzerOpenAI:
		return openai.NewWithAPIKey(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.DefaultLanguage)
	default:
		return lexicon.New(cfg.DefaultLanguage)
	}
}

func executorSettings(cfg *config.Config) resilience.Settings {
	return resilience.Settings{
		Breaker: resilience.BreakerSettings{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Window:           cfg.BreakerFailureWindow,
			Cooldown:         cfg.BreakerCooldown,
		},
		MaxAttempts:     cfg.RetryMaxAttempts,
		BaseDelay:       cfg.RetryBaseDelay,
		MaxDelay:        cfg.RetryMaxDelay,
		RateLimitDelay:  cfg.RetryRateLimitDelay,
		Jitter:          cfg.RetryJitter,
		CallTimeout:     cfg.CallTimeout,
		DefaultDeadline: cfg.JobDeadline,
	}
}

// breakerCheck fails readiness while any analyzer circuit is open.
func breakerCheck(exec *resilience.Executor) httpserver.HealthCheck {
	return httpserver.HealthCheck{
		Name: "analyzer_breaker",
		Check: func(context.Context) error {
			for _, target := range []string{analysis.SentimentTarget, pii.Target} {
				if state := exec.Breaker(target).State(); state == resilience.StateOpen {
					return fmt.Errorf("%s circuit %s", target, state)
				}
			}
			return nil
		},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Analysis worker starting", "env", cfg.AppEnv, "version", version.Version,
		"analyzer", cfg.Analyzer, "cache", cfg.CacheBackend, "jobs", cfg.JobBackend, "queue", cfg.QueueBackend)

	reg := metrics.NewRegistry()
	var done cleanup
	defer done.run()

	b := setupBackends(cfg, clock, reg, &done)

	exec := resilience.NewExecutor(executorSettings(cfg), clock, metrics.NewResilienceMetrics(reg))
	pipeline := analysis.NewPipeline(setupAnalyzer(cfg), exec, cfg.AnalysisChunkSize)

	cacheMetrics := metrics.NewCacheMetrics(reg)
	memLayer := cache.NewMemoryLayer(cfg.CacheMemoryTTL, clock, cacheMetrics)
	done.add(memLayer.StartEvictionTimer(cfg.CacheEvictionInterval))
	resultCache := cache.New(b.cacheStore, memLayer, clock, cacheMetrics)

	jobMetrics := metrics.NewJobMetrics(reg)
	jobStore := jobs.NewStore(b.jobStore, clock, cfg.JobRetention, jobMetrics)

	svc := app.NewService(resultCache, pipeline, jobStore, b.queue, app.Policy{
		CacheTTLShort:        cfg.CacheTTLShort,
		CacheTTLLong:         cfg.CacheTTLLong,
		LongTextThreshold:    cfg.CacheLongTextThreshold,
		RedactBeforeAnalysis: cfg.RedactBeforeAnalysis,
		SyncDeadline:         cfg.SyncDeadline,
		JobDeadline:          cfg.JobDeadline,
	}, clock, metrics.NewAnalysisMetrics(reg), jobMetrics)

	pool := worker.NewPool(b.queue, svc.ProcessJob, cfg.WorkerConcurrency, clock, metrics.NewWorkerMetrics(reg))

	srv := httpserver.NewServer(cfg.OpsPort, metrics.Handler(reg), append(b.checks, breakerCheck(exec)), clock)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Worker pool stopped", "error", err)
	}
	slog.Info("Shutdown signal received, cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
}
