// Package postgres is the durable domain.KeyValueStore backend. Jobs and their
// documents survive restarts here; the result cache stays on Redis or memory.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
	"github.com/roberjo/AuraStream-sub000/internal/adapter/metrics"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	applicationName = "aurastream"
	versionTable    = "public.schema_version"

	// Advisory lock held while migrating: "aurast" in ASCII hex.
	migrationLockID      = 0x617572617374
	migrationUnlockGrace = 5 * time.Second
)

// Connect opens a pool and pings it once. Queries are traced into m when it is non-nil.
func Connect(ctx context.Context, databaseURL string, m *metrics.PostgresMetrics) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	if m != nil {
		cfg.ConnConfig.Tracer = NewMetricsTracer(m)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"sslmode", sslMode(databaseURL),
		"max_conns", cfg.MaxConns)
	return pool, nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	if mode := strings.ToLower(u.Query().Get("sslmode")); mode != "" {
		return mode
	}
	return "prefer (default)"
}

// Migrate brings the kv_entries schema up to date. Workers starting together
// serialize on an advisory lock, so each migration runs once.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer func() {
			// the caller's ctx may already be done; the lock must still go
			unlockCtx, cancel := context.WithTimeout(context.Background(), migrationUnlockGrace)
			defer cancel()
			if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
				slog.Error("Failed to release migration lock", "error", err)
			}
		}()

		migrations, err := fs.Sub(migrationFiles, "migrations")
		if err != nil {
			return fmt.Errorf("failed to read migrations: %w", err)
		}
		migrator, err := migrate.NewMigrator(ctx, conn.Conn(), versionTable)
		if err != nil {
			return fmt.Errorf("failed to create migrator: %w", err)
		}
		if err := migrator.LoadMigrations(migrations); err != nil {
			return fmt.Errorf("failed to load migrations: %w", err)
		}
		migrator.OnStart = func(sequence int32, name, direction, _ string) {
			slog.Info("Applying migration", "sequence", sequence, "name", name, "direction", direction)
		}

		from, err := migrator.GetCurrentVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		slog.Info("Database schema up to date", "from_version", from, "to_version", len(migrator.Migrations))
		return nil
	})
}
