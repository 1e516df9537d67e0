package store

import (
	"context"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS anchors (
		id {{serial}},
		hash TEXT NOT NULL UNIQUE,
		observed_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seeds (
		id {{serial}},
		anchor_id BIGINT NOT NULL UNIQUE REFERENCES anchors(id),
		length INTEGER NOT NULL,
		next_seq INTEGER NOT NULL DEFAULT 0,
		materialized BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seed_numbers (
		seed_id BIGINT NOT NULL REFERENCES seeds(id),
		seq INTEGER NOT NULL,
		value BIGINT NOT NULL,
		PRIMARY KEY (seed_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		balance {{money}} NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rounds (
		id TEXT PRIMARY KEY,
		game_type TEXT NOT NULL,
		state TEXT NOT NULL,
		seed_id BIGINT NOT NULL REFERENCES seeds(id),
		params TEXT NOT NULL,
		outcome TEXT NOT NULL,
		quota INTEGER NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL,
		closes_at {{ts}},
		finalized_at {{ts}}
	)`,
	`CREATE INDEX IF NOT EXISTS rounds_state_closes_at ON rounds (state, closes_at)`,
	`CREATE TABLE IF NOT EXISTS draws (
		seed_id BIGINT NOT NULL,
		seq INTEGER NOT NULL,
		round_id TEXT NOT NULL REFERENCES rounds(id),
		drawn_at {{ts}} NOT NULL,
		PRIMARY KEY (seed_id, seq),
		FOREIGN KEY (seed_id, seq) REFERENCES seed_numbers(seed_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS bets (
		id TEXT PRIMARY KEY,
		round_id TEXT NOT NULL REFERENCES rounds(id),
		user_id BIGINT NOT NULL REFERENCES users(id),
		stake {{money}} NOT NULL,
		market TEXT NOT NULL,
		choice TEXT NOT NULL DEFAULT '',
		odd {{money}} NOT NULL,
		dealt TEXT NOT NULL DEFAULT '[]',
		result_amount {{money}} NOT NULL,
		won BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bets_round_id ON bets (round_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bets_raffle_ticket ON bets (round_id, choice) WHERE market = 'TICKET'`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		round_id TEXT,
		bet_id TEXT,
		kind TEXT NOT NULL,
		amount {{money}} NOT NULL,
		balance_after {{money}} NOT NULL,
		description TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_user_id ON ledger_entries (user_id)`,
}

func (s *Store) types() *strings.Replacer {
	if s.dialect == Postgres {
		return strings.NewReplacer(
			"{{serial}}", "BIGSERIAL PRIMARY KEY",
			"{{ts}}", "TIMESTAMPTZ",
			"{{money}}", "NUMERIC",
		)
	}
	return strings.NewReplacer(
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "TIMESTAMP",
		"{{money}}", "TEXT",
	)
}

// Migrate creates every table and index that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	r := s.types()
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("failed to migrate schema: %v", err)
		}
	}
	return nil
}
