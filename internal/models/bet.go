package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Bet struct {
	ID           string          `json:"id"`
	RoundID      string          `json:"round_id"`
	UserID       int64           `json:"user_id"`
	Stake        decimal.Decimal `json:"stake"`
	Market       string          `json:"market"`
	Choice       string          `json:"choice,omitempty"`
	Odd          decimal.Decimal `json:"odd"`
	Dealt        []int           `json:"dealt,omitempty"`
	ResultAmount decimal.Decimal `json:"result_amount"`
	Won          bool            `json:"won"`
	CreatedAt    time.Time       `json:"created_at"`
}

type BetRequest struct {
	RoundID string          `json:"-"`
	UserID  int64           `json:"-"`
	Stake   decimal.Decimal `json:"stake"`
	Market  string          `json:"market" binding:"required"`
	Choice  string          `json:"choice"`
}

func (br *BetRequest) Validate() error {
	if !br.Stake.IsPositive() {
		return fmt.Errorf("stake must be positive: %w", ErrInvalidInput)
	}
	if br.Market == "" {
		return fmt.Errorf("market is required: %w", ErrInvalidInput)
	}
	return nil
}
