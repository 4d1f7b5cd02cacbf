package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	AnalyzerLexicon    = "lexicon"
	AnalyzerComprehend = "comprehend"
	AnalyzerOpenAI     = "openai"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
	OpsPort   string `env:"OPS_PORT" default:"9090"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	CacheBackend string `env:"CACHE_BACKEND" default:"memory"`
	JobBackend   string `env:"JOB_BACKEND" default:"memory"`
	QueueBackend string `env:"QUEUE_BACKEND" default:"memory"`

	Analyzer        string `env:"ANALYZER" default:"lexicon"`
	AWSRegion       string `env:"AWS_REGION" default:"us-east-1"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" default:"en"`

	CacheTTLShort          time.Duration `env:"CACHE_TTL_SHORT" default:"1h"`
	CacheTTLLong           time.Duration `env:"CACHE_TTL_LONG" default:"24h"`
	CacheLongTextThreshold int           `env:"CACHE_LONG_TEXT_THRESHOLD" default:"280"`
	CacheMemoryTTL         time.Duration `env:"CACHE_MEMORY_TTL" default:"30s"`
	CacheEvictionInterval  time.Duration `env:"CACHE_EVICTION_INTERVAL" default:"1m"`

	BreakerFailureThreshold int           `env:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerFailureWindow    time.Duration `env:"BREAKER_FAILURE_WINDOW" default:"1m"`
	BreakerCooldown         time.Duration `env:"BREAKER_COOLDOWN" default:"30s"`

	RetryMaxAttempts    int           `env:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay      time.Duration `env:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay       time.Duration `env:"RETRY_MAX_DELAY" default:"8s"`
	RetryRateLimitDelay time.Duration `env:"RETRY_RATE_LIMIT_DELAY" default:"5s"`
	RetryJitter         float64       `env:"RETRY_JITTER" default:"0.2"`
	CallTimeout         time.Duration `env:"CALL_TIMEOUT" default:"10s"`
	SyncDeadline        time.Duration `env:"SYNC_DEADLINE" default:"30s"`
	JobDeadline         time.Duration `env:"JOB_DEADLINE" default:"5m"`

	JobRetention      time.Duration `env:"JOB_RETENTION" default:"0s"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" default:"4"`
	QueueSize         int           `env:"QUEUE_SIZE" default:"100"`
	DBSweepInterval   time.Duration `env:"DB_SWEEP_INTERVAL" default:"10m"`

	RedactBeforeAnalysis bool `env:"PII_REDACT_BEFORE_ANALYSIS" default:"true"`
	AnalysisChunkSize    int  `env:"ANALYSIS_CHUNK_SIZE" default:"4500"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NeedsRedis reports whether any backend selection requires REDIS_URL.
func (c *Config) NeedsRedis() bool {
	return c.CacheBackend == BackendRedis || c.JobBackend == BackendRedis || c.QueueBackend == BackendRedis
}

func validate(cfg *Config) error {
	if err := oneOf("CACHE_BACKEND", cfg.CacheBackend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("JOB_BACKEND", cfg.JobBackend, BackendMemory, BackendRedis, BackendPostgres); err != nil {
		return err
	}
	if err := oneOf("QUEUE_BACKEND", cfg.QueueBackend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("ANALYZER", cfg.Analyzer, AnalyzerLexicon, AnalyzerComprehend, AnalyzerOpenAI); err != nil {
		return err
	}

	if cfg.NeedsRedis() && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required when a redis backend is selected")
	}
	if cfg.JobBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when JOB_BACKEND=postgres")
	}
	if cfg.Analyzer == AnalyzerOpenAI && cfg.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required when ANALYZER=openai")
	}

	positive := map[string]int{
		"BREAKER_FAILURE_THRESHOLD": cfg.BreakerFailureThreshold,
		"RETRY_MAX_ATTEMPTS":        cfg.RetryMaxAttempts,
		"WORKER_CONCURRENCY":        cfg.WorkerConcurrency,
		"QUEUE_SIZE":                cfg.QueueSize,
		"ANALYSIS_CHUNK_SIZE":       cfg.AnalysisChunkSize,
	}
	for name, value := range positive {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, value)
		}
	}

	if cfg.CallTimeout <= 0 || cfg.SyncDeadline <= 0 || cfg.JobDeadline <= 0 {
		return errors.New("CALL_TIMEOUT, SYNC_DEADLINE and JOB_DEADLINE must be positive")
	}
	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		return fmt.Errorf("RETRY_JITTER must be within [0, 1], got %g", cfg.RetryJitter)
	}
	if cfg.CacheTTLShort > cfg.CacheTTLLong {
		return errors.New("CACHE_TTL_SHORT must not exceed CACHE_TTL_LONG")
	}

	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", name, allowed, value)
}
