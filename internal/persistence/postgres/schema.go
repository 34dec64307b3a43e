package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the playtime schema. Statements are executed one
// at a time because pgx's extended protocol rejects multi-statement strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		activity_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		user_id BIGINT PRIMARY KEY,
		activity_id BIGINT NOT NULL REFERENCES activities(activity_id),
		started_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS playtime (
		user_id BIGINT NOT NULL,
		activity_id BIGINT NOT NULL REFERENCES activities(activity_id),
		total_seconds BIGINT NOT NULL DEFAULT 0 CHECK (total_seconds >= 0),
		PRIMARY KEY (user_id, activity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		event_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		event_type TEXT NOT NULL,
		topic TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		payload JSONB NOT NULL,
		dedupe_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		claimed_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unpublished_idx ON outbox (event_id) WHERE published_at IS NULL`,
}

var dropStatements = []string{
	`DROP TABLE IF EXISTS outbox`,
	`DROP TABLE IF EXISTS playtime`,
	`DROP TABLE IF EXISTS sessions`,
	`DROP TABLE IF EXISTS activities`,
}

// EnsureSchema creates the tables if they do not exist. It is run on
// startup so a fresh database is usable without a migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func rebuildSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range dropStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return EnsureSchema(ctx, pool)
}
