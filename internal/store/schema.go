package store

import (
	"context"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bot_patterns (
		id             BIGSERIAL PRIMARY KEY,
		pattern        TEXT        NOT NULL,
		pattern_type   TEXT        NOT NULL DEFAULT 'regex' CHECK (pattern_type IN ('exact', 'regex')),
		bot_name       TEXT        NOT NULL DEFAULT '',
		bot_vendor     TEXT        NOT NULL DEFAULT '',
		bot_category   TEXT        NOT NULL DEFAULT 'other',
		priority       TEXT        NOT NULL DEFAULT 'medium' CHECK (priority IN ('blocked', 'high', 'medium', 'low')),
		source         TEXT        NOT NULL DEFAULT 'manual',
		source_version TEXT        NOT NULL DEFAULT '',
		is_active      BOOLEAN     NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bot_patterns_active_pattern_idx
		ON bot_patterns (pattern) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS bot_patterns_source_idx ON bot_patterns (source)`,

	`CREATE TABLE IF NOT EXISTS unknown_bots (
		id                        BIGSERIAL PRIMARY KEY,
		user_agent                TEXT             NOT NULL,
		user_agent_hash           TEXT             NOT NULL UNIQUE,
		is_bot                    BOOLEAN          NOT NULL DEFAULT FALSE,
		confidence                DOUBLE PRECISION NOT NULL DEFAULT 0,
		method                    TEXT             NOT NULL DEFAULT 'unknown',
		suggested_bot_name        TEXT             NOT NULL DEFAULT '',
		indicators                TEXT             NOT NULL DEFAULT '',
		heuristic_bot_probability DOUBLE PRECISION NOT NULL DEFAULT 0
		                          CHECK (heuristic_bot_probability BETWEEN 0 AND 1),
		visit_count               BIGINT           NOT NULL DEFAULT 1,
		classification_status     TEXT             NOT NULL DEFAULT 'pending'
		                          CHECK (classification_status IN ('pending', 'promoted', 'rejected')),
		first_seen                TIMESTAMPTZ      NOT NULL DEFAULT now(),
		last_seen                 TIMESTAMPTZ      NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS unknown_bots_learnable_idx
		ON unknown_bots (classification_status, heuristic_bot_probability DESC)`,

	`CREATE TABLE IF NOT EXISTS bot_sync_runs (
		id             BIGSERIAL PRIMARY KEY,
		source_name    TEXT        NOT NULL,
		source_version TEXT        NOT NULL DEFAULT '',
		added_count    INTEGER     NOT NULL DEFAULT 0,
		updated_count  INTEGER     NOT NULL DEFAULT 0,
		total_count    INTEGER     NOT NULL DEFAULT 0,
		status         TEXT        NOT NULL CHECK (status IN ('success', 'failed')),
		error_message  TEXT        NOT NULL DEFAULT '',
		synced_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bot_sync_runs_source_idx ON bot_sync_runs (source_name, synced_at DESC)`,

	`CREATE TABLE IF NOT EXISTS admin_api_keys (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT        NOT NULL,
		key_hash   TEXT        NOT NULL,
		key_prefix TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS admin_api_keys_prefix_idx
		ON admin_api_keys (key_prefix) WHERE revoked_at IS NULL`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: statement %d: %w", i, err)
		}
	}
	return nil
}
