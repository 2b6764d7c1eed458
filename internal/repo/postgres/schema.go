package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS targets (
  id           TEXT PRIMARY KEY,
  name         TEXT NOT NULL DEFAULT '',
  protocol     TEXT NOT NULL,
  address      TEXT NOT NULL,
  interval_sec INTEGER NOT NULL,
  paused       BOOLEAN NOT NULL DEFAULT false,
  labels       TEXT[] NOT NULL DEFAULT '{}',
  params       JSONB NOT NULL DEFAULT '{}',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
  seq         BIGSERIAL PRIMARY KEY,
  id          TEXT NOT NULL UNIQUE,
  target_id   TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
  status      TEXT NOT NULL,
  latency_ms  DOUBLE PRECISION NOT NULL,
  status_code INTEGER NOT NULL DEFAULT 0,
  error       TEXT NOT NULL DEFAULT '',
  reason      TEXT NOT NULL DEFAULT '',
  detail      JSONB,
  checked_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_target_time ON observations (target_id, checked_at, seq);

CREATE TABLE IF NOT EXISTS target_states (
  target_id       TEXT PRIMARY KEY REFERENCES targets(id) ON DELETE CASCADE,
  status          TEXT NOT NULL,
  last_checked_at TIMESTAMPTZ NOT NULL,
  last_latency_ms DOUBLE PRECISION NOT NULL,
  last_error      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
  id                 TEXT PRIMARY KEY,
  telegram_bot_token TEXT NOT NULL DEFAULT '',
  telegram_chat_id   TEXT NOT NULL DEFAULT '',
  enabled            BOOLEAN NOT NULL DEFAULT false
);
`

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("schema_ready")
	return nil
}

