package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

const betColumns = `id, round_id, user_id, stake, market, choice, odd, dealt, result_amount, won, created_at`

func scanBet(row scanner) (*models.Bet, error) {
	var (
		b     models.Bet
		dealt string
	)
	err := row.Scan(&b.ID, &b.RoundID, &b.UserID, &b.Stake, &b.Market, &b.Choice,
		&b.Odd, &dealt, &b.ResultAmount, &b.Won, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dealt), &b.Dealt); err != nil {
		return nil, fmt.Errorf("decode dealt numbers of bet %s: %v", b.ID, err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// InsertBet stores a new bet. A second purchase of the same raffle ticket
// fails with models.ErrConflict.
func (s *Store) InsertBet(ctx context.Context, tx *sql.Tx, b *models.Bet) error {
	dealt := b.Dealt
	if dealt == nil {
		dealt = []int{}
	}
	data, err := json.Marshal(dealt)
	if err != nil {
		return fmt.Errorf("encode dealt numbers: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bets (id, round_id, user_id, stake, market, choice, odd, dealt, result_amount, won, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.RoundID, b.UserID, b.Stake, b.Market, b.Choice, b.Odd,
		string(data), b.ResultAmount, b.Won, b.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("insert bet %s: %w", b.ID, err))
	}
	return nil
}

func (s *Store) GetBet(ctx context.Context, q Querier, id string) (*models.Bet, error) {
	b, err := scanBet(q.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bet %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load bet %s: %w", id, err)
	}
	return b, nil
}

// RoundBets lists the bets of a round in placement order.
func (s *Store) RoundBets(ctx context.Context, q Querier, roundID string) ([]*models.Bet, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE round_id = $1 ORDER BY created_at, id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list bets of round %s: %w", roundID, err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (s *Store) CountBets(ctx context.Context, q Querier, roundID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bets WHERE round_id = $1`, roundID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bets of round %s: %w", roundID, err)
	}
	return n, nil
}

// TicketSold reports whether a raffle ticket of the round is taken.
func (s *Store) TicketSold(ctx context.Context, q Querier, roundID, ticket string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bets WHERE round_id = $1 AND market = 'TICKET' AND choice = $2`,
		roundID, ticket).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check ticket %s of round %s: %w", ticket, roundID, err)
	}
	return n > 0, nil
}

// SettleBet writes the result of a bet during finalize.
func (s *Store) SettleBet(ctx context.Context, tx *sql.Tx, id string, amount decimal.Decimal, won bool) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bets SET result_amount = $1, won = $2 WHERE id = $3`,
		amount, won, id)
	if err != nil {
		return classify(fmt.Errorf("settle bet %s: %w", id, err))
	}
	return nil
}
