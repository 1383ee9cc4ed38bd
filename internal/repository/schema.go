package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS platform_config (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		admin TEXT NOT NULL,
		upgrade_authority TEXT NOT NULL DEFAULT '',
		platform_wallet TEXT NOT NULL,
		charity_wallet TEXT NOT NULL,
		platform_fee_bps SMALLINT NOT NULL,
		max_host_fee_bps SMALLINT NOT NULL,
		max_prize_pool_bps SMALLINT NOT NULL,
		min_charity_bps SMALLINT NOT NULL,
		paused BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS approved_assets (
		asset_type TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS token_accounts (
		address TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		kind VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_token_accounts_owner ON token_accounts(owner)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_key TEXT PRIMARY KEY,
		room_id VARCHAR(32) NOT NULL,
		host TEXT NOT NULL,
		fee_asset TEXT NOT NULL,
		charity_wallet TEXT NOT NULL,
		memo VARCHAR(28) NOT NULL DEFAULT '',
		entry_fee BIGINT NOT NULL,
		max_players INTEGER NOT NULL,
		platform_fee_bps SMALLINT NOT NULL,
		host_fee_bps SMALLINT NOT NULL,
		prize_pool_bps SMALLINT NOT NULL,
		charity_bps SMALLINT NOT NULL,
		prize_distribution SMALLINT[] NOT NULL DEFAULT '{}',
		prize_mode VARCHAR(16) NOT NULL,
		prize_slots JSONB NOT NULL DEFAULT '[]',
		status VARCHAR(20) NOT NULL,
		player_count INTEGER NOT NULL DEFAULT 0,
		total_entry_fees BIGINT NOT NULL DEFAULT 0,
		total_extras_fees BIGINT NOT NULL DEFAULT 0,
		ended BOOLEAN NOT NULL DEFAULT FALSE,
		joining_closed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL DEFAULT 0,
		winners TEXT[] NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (host, room_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_expiry ON rooms(expires_at) WHERE ended = FALSE AND expires_at <> 0`,
	`CREATE TABLE IF NOT EXISTS participant_entries (
		room_key TEXT NOT NULL REFERENCES rooms(room_key),
		participant TEXT NOT NULL,
		entry_paid BIGINT NOT NULL,
		extras_paid BIGINT NOT NULL,
		joined_at BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (room_key, participant)
	)`,
	`CREATE TABLE IF NOT EXISTS room_events (
		id UUID PRIMARY KEY,
		kind VARCHAR(32) NOT NULL,
		room_key TEXT NOT NULL DEFAULT '',
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_room_events_room_time ON room_events(room_key, created_at DESC)`,
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
