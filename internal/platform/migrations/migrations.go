// Package migrations creates the database schema for the chip bank service.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// statements run in order. Each statement is idempotent so Apply can run on
// every startup.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id BIGINT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chip_balances (
		player_id BIGINT PRIMARY KEY REFERENCES players (id),
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		last_updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS chip_transfers (
		transfer_id TEXT PRIMARY KEY,
		from_player_id BIGINT NOT NULL REFERENCES players (id),
		to_player_id BIGINT NOT NULL REFERENCES players (id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chip_history (
		id BIGSERIAL PRIMARY KEY,
		player_id BIGINT NOT NULL REFERENCES players (id),
		transfer_id TEXT NOT NULL,
		direction TEXT NOT NULL CHECK (direction IN ('debit', 'credit')),
		amount BIGINT NOT NULL,
		balance_before BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chip_transfers_players ON chip_transfers (from_player_id, to_player_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chip_transfers_status ON chip_transfers (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chip_history_player ON chip_history (player_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chip_history_transfer ON chip_history (transfer_id)`,
}

// Apply executes all schema statements against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
