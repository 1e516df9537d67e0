package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/store"
)

// LedgerService owns user balances. Every mutation runs inside the caller's
// transaction under the user's row lock and leaves one ledger entry.
type LedgerService struct {
	store   *store.Store
	opening decimal.Decimal
	log     *zap.Logger
}

func NewLedgerService(st *store.Store, opening decimal.Decimal, log *zap.Logger) *LedgerService {
	return &LedgerService{store: st, opening: opening, log: log}
}

// EnsureUser creates the account with the opening balance on first sight.
func (l *LedgerService) EnsureUser(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("user id %d: %w", userID, models.ErrInvalidInput)
	}
	created, err := l.store.EnsureUser(ctx, l.store.DB(), userID, l.opening)
	if err != nil {
		return err
	}
	if created {
		l.log.Info("user account opened",
			zap.Int64("user_id", userID),
			zap.String("balance", models.FormatCurrency(l.opening)))
	}
	return nil
}

func (l *LedgerService) Debit(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal, ref models.EntryRef) (*models.LedgerEntry, error) {
	return l.apply(ctx, tx, userID, models.EntryDebit, amount, ref)
}

func (l *LedgerService) Credit(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal, ref models.EntryRef) (*models.LedgerEntry, error) {
	return l.apply(ctx, tx, userID, models.EntryCredit, amount, ref)
}

func (l *LedgerService) apply(ctx context.Context, tx *sql.Tx, userID int64, kind models.EntryKind, amount decimal.Decimal, ref models.EntryRef) (*models.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%s of %s: %w", kind, amount, models.ErrInvalidInput)
	}

	user, err := l.store.LockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	balance := user.Balance
	if kind == models.EntryDebit {
		balance = balance.Sub(amount)
		if balance.IsNegative() {
			return nil, fmt.Errorf("user %d balance %s below %s: %w",
				userID, models.FormatCurrency(user.Balance), models.FormatCurrency(amount), models.ErrInsufficientFunds)
		}
	} else {
		balance = balance.Add(amount)
	}

	if err := l.store.UpdateBalance(ctx, tx, userID, balance); err != nil {
		return nil, err
	}

	entry := &models.LedgerEntry{
		ID:           models.GenerateEntryID(),
		UserID:       userID,
		RoundID:      ref.RoundID,
		BetID:        ref.BetID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balance,
		Description:  ref.Description,
		CreatedAt:    nowUTC(),
	}
	if err := l.store.InsertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

func (l *LedgerService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := l.store.GetUser(ctx, l.store.DB(), userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func (l *LedgerService) History(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return l.store.UserEntries(ctx, l.store.DB(), userID, limit)
}
