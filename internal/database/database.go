package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the processing_records table. Keeping the migration in
// code lets the worker and CLI bootstrap an empty database.
const Schema = `
CREATE TABLE IF NOT EXISTS processing_records (
	item_id TEXT PRIMARY KEY,
	course_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	revision_hash TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	required_kinds JSONB NOT NULL DEFAULT '[]',
	artifact_refs JSONB NOT NULL DEFAULT '{}',
	last_error TEXT NOT NULL DEFAULT '',
	last_attempt_at TIMESTAMPTZ NOT NULL,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	posted_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processing_records_status ON processing_records(status);
CREATE INDEX IF NOT EXISTS idx_processing_records_course ON processing_records(course_id);`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
