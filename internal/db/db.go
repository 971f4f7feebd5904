// Package db provides PostgreSQL database access for the job record store.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the tables and indexes the store needs if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_records (
			id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			source           TEXT NOT NULL,
			source_id        TEXT NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			description      TEXT NOT NULL DEFAULT '',
			raw_text         TEXT NOT NULL DEFAULT '',
			postal_code      TEXT NOT NULL DEFAULT '',
			department       TEXT NOT NULL DEFAULT '',
			contract_type    TEXT NOT NULL DEFAULT '',
			payload          JSONB,
			tags             TEXT[] NOT NULL DEFAULT '{}',
			processed        BOOLEAN NOT NULL DEFAULT FALSE,
			active           BOOLEAN NOT NULL DEFAULT TRUE,
			created_upstream TIMESTAMPTZ,
			updated_upstream TIMESTAMPTZ,
			collected_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at     TIMESTAMPTZ,
			closed_at        TIMESTAMPTZ,
			UNIQUE (source, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_records_active ON job_records (source, active)`,
		`CREATE INDEX IF NOT EXISTS idx_job_records_processed ON job_records (source, processed) WHERE NOT processed`,
		`CREATE TABLE IF NOT EXISTS skill_detections (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			job_id      TEXT NOT NULL,
			source      TEXT NOT NULL,
			skill       TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			confidence  DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			method      TEXT NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (job_id, skill, method)
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_run_markers (
			stage         TEXT NOT NULL,
			source        TEXT NOT NULL,
			last_run_at   TIMESTAMPTZ NOT NULL,
			summary_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (stage, source)
		)`,
		`CREATE TABLE IF NOT EXISTS stats_snapshots (
			id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			source       TEXT NOT NULL,
			period       TEXT NOT NULL,
			payload      JSONB NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (source, period)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
