package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

var machineOdds = map[int]decimal.Decimal{
	1:  decimal.RequireFromString("3.33"),
	2:  decimal.NewFromInt(5),
	3:  decimal.RequireFromString("3.33"),
	6:  decimal.RequireFromString("5.83"),
	10: decimal.RequireFromString("9.16"),
}

// MachineOdd returns the multiplier for a purchase of cards machine cards,
// zero when the count is not on sale.
func MachineOdd(cards int) decimal.Decimal {
	if o, ok := machineOdds[cards]; ok {
		return o
	}
	return decimal.Zero
}

// BingoMachineCards buys Cards single-number cards dealt at purchase.
type BingoMachineCards struct{ Cards int }

// BingoUserCard is a 3x3 or 5x5 card dealt at purchase.
type BingoUserCard struct{ Size int }

func (BingoMachineCards) Game() models.GameType { return models.GameTypeBingo }
func (BingoUserCard) Game() models.GameType     { return models.GameTypeBingo }

func (BingoMachineCards) Market() string { return "MACHINE" }
func (BingoUserCard) Market() string     { return "CARD" }

func (BingoMachineCards) rule() {}
func (BingoUserCard) rule()     {}

// Dealt is the count of pool numbers a bingo purchase consumes.
func Dealt(r Rule) int {
	switch v := r.(type) {
	case BingoMachineCards:
		return v.Cards
	case BingoUserCard:
		return v.Size
	}
	return 0
}

func parseBingo(params models.RoundParams, market, choice string) (Rule, error) {
	switch params.BingoMode {
	case models.BingoMachine:
		if market != "MACHINE" {
			return nil, fmt.Errorf("machine rounds only sell MACHINE cards")
		}
		n, err := atoiRange(choice, 1, 10)
		if err != nil {
			return nil, err
		}
		if _, ok := machineOdds[n]; !ok {
			return nil, fmt.Errorf("%d cards are not on sale", n)
		}
		return BingoMachineCards{Cards: n}, nil
	case models.BingoUser:
		if market != "CARD" {
			return nil, fmt.Errorf("user rounds only sell CARD purchases")
		}
		return BingoUserCard{Size: params.CardSize}, nil
	}
	return nil, fmt.Errorf("round has no valid bingo mode")
}

// ValidCardSize reports whether size is a 3x3 or 5x5 card.
func ValidCardSize(size int) bool {
	return size == 9 || size == 25
}

// MachineWins reports whether any dealt card equals the drawn number.
func MachineWins(dealt []int, drawn int) bool {
	for _, c := range dealt {
		if c == drawn {
			return true
		}
	}
	return false
}

// UserCardEvaluator decides whether a user-mode card has won given the
// numbers drawn at finalize, and with which multiplier.
type UserCardEvaluator interface {
	Evaluate(card []int, drawn []int) (won bool, odd decimal.Decimal)
}

// NoWinEvaluator never reports a win. User-mode bingo has no agreed winning
// pattern yet.
type NoWinEvaluator struct{}

func (NoWinEvaluator) Evaluate([]int, []int) (bool, decimal.Decimal) {
	return false, decimal.Zero
}
