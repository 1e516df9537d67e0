package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fairplay/roundhouse/internal/models"
)

const roundColumns = `id, game_type, state, seed_id, params, outcome, quota, created_at, closes_at, finalized_at`

func scanRound(row scanner) (*models.Round, error) {
	var (
		r         models.Round
		params    string
		outcome   string
		closesAt  sql.NullTime
		finalized sql.NullTime
	)
	err := row.Scan(&r.ID, &r.GameType, &r.State, &r.SeedID, &params, &outcome,
		&r.Quota, &r.CreatedAt, &closesAt, &finalized)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("decode params of round %s: %v", r.ID, err)
	}
	if err := json.Unmarshal([]byte(outcome), &r.Outcome); err != nil {
		return nil, fmt.Errorf("decode outcome of round %s: %v", r.ID, err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.ClosesAt = timePtr(closesAt)
	r.FinalizedAt = timePtr(finalized)
	return &r, nil
}

func (s *Store) InsertRound(ctx context.Context, q Querier, r *models.Round) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("encode round params: %v", err)
	}
	outcome, err := json.Marshal(r.Outcome)
	if err != nil {
		return fmt.Errorf("encode round outcome: %v", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO rounds (id, game_type, state, seed_id, params, outcome, quota, created_at, closes_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, string(r.GameType), string(r.State), r.SeedID, string(params), string(outcome),
		r.Quota, r.CreatedAt.UTC(), nullTime(r.ClosesAt),
	)
	if err != nil {
		return classify(fmt.Errorf("insert round %s: %w", r.ID, err))
	}
	return nil
}

func (s *Store) GetRound(ctx context.Context, q Querier, id string) (*models.Round, error) {
	r, err := scanRound(q.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("round %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load round %s: %w", id, err)
	}
	return r, nil
}

// LockRound loads a round and holds its row lock until tx ends.
func (s *Store) LockRound(ctx context.Context, tx *sql.Tx, id string) (*models.Round, error) {
	r, err := scanRound(tx.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE id = $1`+s.forUpdate(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("round %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("lock round %s: %w", id, err))
	}
	return r, nil
}

// FinalizeRound moves an open round to finalized with its outcome. It fails
// with models.ErrConflict when the round is no longer open.
func (s *Store) FinalizeRound(ctx context.Context, tx *sql.Tx, id string, outcome models.RoundOutcome, at time.Time) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode round outcome: %v", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE rounds SET state = $1, outcome = $2, finalized_at = $3
		WHERE id = $4 AND state = $5`,
		string(models.RoundFinalized), string(data), at.UTC(), id, string(models.RoundOpen),
	)
	if err != nil {
		return classify(fmt.Errorf("finalize round %s: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize round %s: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("round %s already finalized: %w", id, models.ErrConflict)
	}
	return nil
}

// DueRounds lists open rounds whose close time has passed or whose quota of
// bets is reached.
func (s *Store) DueRounds(ctx context.Context, q Querier, at time.Time) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id FROM rounds r
		WHERE r.state = $1
		AND (
			(r.closes_at IS NOT NULL AND r.closes_at <= $2)
			OR (r.quota > 0 AND (SELECT COUNT(*) FROM bets b WHERE b.round_id = r.id) >= r.quota)
		)
		ORDER BY r.created_at`,
		string(models.RoundOpen), at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due rounds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due round: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
