package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// The ledger saves synchronously on every mutation; keep a few warm
	// connections but nothing close to a web-tier pool.
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate creates the quota bookkeeping tables.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		// One row per configured credential; the ledger is the sole writer.
		`CREATE TABLE IF NOT EXISTS quota_credentials (
			name VARCHAR(255) PRIMARY KEY,
			daily_quota BIGINT NOT NULL,
			used_quota BIGINT NOT NULL DEFAULT 0,
			last_reset TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			error_count INT NOT NULL DEFAULT 0,
			last_error TIMESTAMPTZ
		);`,

		// Single-row aggregate counters, maps stored as JSONB.
		`CREATE TABLE IF NOT EXISTS quota_totals (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			total_requests BIGINT NOT NULL DEFAULT 0,
			total_quota_used BIGINT NOT NULL DEFAULT 0,
			requests_by_endpoint JSONB NOT NULL DEFAULT '{}',
			quota_by_endpoint JSONB NOT NULL DEFAULT '{}',
			errors_by_credential JSONB NOT NULL DEFAULT '{}',
			saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,

		// Append-only usage history, pruned by age.
		`CREATE TABLE IF NOT EXISTS usage_events (
			id UUID PRIMARY KEY,
			credential VARCHAR(255) NOT NULL,
			endpoint VARCHAR(255) NOT NULL,
			units BIGINT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			outcome VARCHAR(16) NOT NULL
		);`,

		`CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events (ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_usage_events_credential ON usage_events (credential, ts DESC);`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w\nQuery: %s", err, migration)
		}
	}

	return nil
}
