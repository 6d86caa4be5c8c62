package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fabrics (
		id                BIGSERIAL PRIMARY KEY,
		name              TEXT NOT NULL,
		url               TEXT NOT NULL UNIQUE,
		origin            TEXT NOT NULL DEFAULT '',
		rating            TEXT NOT NULL DEFAULT 'unrated'
			CHECK (rating IN ('yes', 'no', 'maybe', 'unrated')),
		price             NUMERIC(12, 2),
		currency          TEXT NOT NULL DEFAULT 'USD',
		composition       TEXT,
		description       TEXT,
		image_path        TEXT,
		image_paths       JSONB,
		width             TEXT,
		weight            TEXT,
		care_instructions TEXT,
		color             TEXT,
		pattern           TEXT,
		brand             TEXT,
		extra_info        TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_scraped      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fabrics_rating ON fabrics (rating)`,
	`CREATE INDEX IF NOT EXISTS idx_fabrics_origin ON fabrics (origin)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		retry_count    INT NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
		ON outbox_event (status, next_retry_at)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id          UUID PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		seeds       INT NOT NULL DEFAULT 0,
		created     INT NOT NULL DEFAULT 0,
		updated     INT NOT NULL DEFAULT 0,
		failed      INT NOT NULL DEFAULT 0,
		status      TEXT NOT NULL
	)`,
}

// Migrate creates the tables the service needs. It is safe to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	return db.Transaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
