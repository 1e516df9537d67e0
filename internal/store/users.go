package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

const userColumns = `id, balance, created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Balance, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// EnsureUser creates the user with an opening balance if it does not exist.
// created reports whether a row was inserted.
func (s *Store) EnsureUser(ctx context.Context, q Querier, id int64, opening decimal.Decimal) (bool, error) {
	at := now()
	res, err := q.ExecContext(ctx, `
		INSERT INTO users (id, balance, created_at, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		id, opening, at, at)
	if err != nil {
		return false, classify(fmt.Errorf("ensure user %d: %w", id, err))
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *Store) GetUser(ctx context.Context, q Querier, id int64) (*models.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return u, nil
}

// LockUser loads a user and holds its row lock until tx ends.
func (s *Store) LockUser(ctx context.Context, tx *sql.Tx, id int64) (*models.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`+s.forUpdate(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("lock user %d: %w", id, err))
	}
	return u, nil
}

func (s *Store) UpdateBalance(ctx context.Context, tx *sql.Tx, id int64, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance, now(), id)
	if err != nil {
		return classify(fmt.Errorf("update balance of user %d: %w", id, err))
	}
	return nil
}

func (s *Store) InsertEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, round_id, bet_id, kind, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, nullString(e.RoundID), nullString(e.BetID), string(e.Kind),
		e.Amount, e.BalanceAfter, e.Description, e.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("insert ledger entry %s: %w", e.ID, err))
	}
	return nil
}

// UserEntries lists the newest ledger entries of a user first.
func (s *Store) UserEntries(ctx context.Context, q Querier, userID int64, limit int) ([]*models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, round_id, bet_id, kind, amount, balance_after, description, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger of user %d: %w", userID, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var (
			e       models.LedgerEntry
			roundID sql.NullString
			betID   sql.NullString
		)
		err := rows.Scan(&e.ID, &e.UserID, &roundID, &betID, &e.Kind,
			&e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.RoundID = roundID.String
		e.BetID = betID.String
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SumEntries returns total credits minus total debits of a user.
func (s *Store) SumEntries(ctx context.Context, q Querier, userID int64) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT kind, amount FROM ledger_entries WHERE user_id = $1`, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger of user %d: %w", userID, err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var (
			kind   models.EntryKind
			amount decimal.Decimal
		)
		if err := rows.Scan(&kind, &amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan ledger entry: %w", err)
		}
		if kind == models.EntryDebit {
			total = total.Sub(amount)
		} else {
			total = total.Add(amount)
		}
	}
	return total, rows.Err()
}
