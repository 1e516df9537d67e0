package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryDebit  EntryKind = "debit"
	EntryCredit EntryKind = "credit"
)

// LedgerEntry records one committed balance mutation.
type LedgerEntry struct {
	ID           string          `json:"id"`
	UserID       int64           `json:"user_id"`
	RoundID      string          `json:"round_id,omitempty"`
	BetID        string          `json:"bet_id,omitempty"`
	Kind         EntryKind       `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// EntryRef says what a ledger mutation is for.
type EntryRef struct {
	RoundID     string
	BetID       string
	Description string
}

type BalanceResponse struct {
	UserID  int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}
