// Package payout holds the pure prize rules of every game market.
//
// A Rule is parsed once from the (game, market, choice) triple a player
// submits and is then evaluated against drawn numbers with a type switch.
// Parsing fails with models.ErrInvalidInput for anything outside the closed
// set of variants below.
package payout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

// Rule is a validated market selection.
type Rule interface {
	Game() models.GameType
	Market() string
	rule()
}

// Parse validates a market selection for a round of the given game.
func Parse(game models.GameType, params models.RoundParams, market, choice string) (Rule, error) {
	market = strings.ToUpper(strings.TrimSpace(market))
	choice = strings.TrimSpace(choice)

	var (
		r   Rule
		err error
	)
	switch game {
	case models.GameTypeRoulette:
		r, err = parseRoulette(market, choice)
	case models.GameTypeBet:
		r, err = parseBet(market, choice)
	case models.GameTypeDice:
		r, err = parseDice(params, market, choice)
	case models.GameTypeRaffle:
		r, err = parseRaffle(params, market, choice)
	case models.GameTypeBingo:
		r, err = parseBingo(params, market, choice)
	default:
		err = fmt.Errorf("unknown game type %q", game)
	}
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %v: %w", game, market, err, models.ErrInvalidInput)
	}
	return r, nil
}

// Transform maps a raw seed entry onto the number space of a game.
func Transform(game models.GameType, value uint32) int {
	switch game {
	case models.GameTypeDice:
		return int(value%6) + 1
	case models.GameTypeRoulette:
		return int(value % 37)
	case models.GameTypeBingo:
		return int(value % 76)
	case models.GameTypeRaffle:
		return int(value % 100)
	case models.GameTypeBet:
		return int(value % 97)
	}
	return int(value)
}

// Wins evaluates a single-number rule against the drawn number n.
func Wins(r Rule, n int) bool {
	switch v := r.(type) {
	case RouletteNumber:
		return n == v.Number
	case RouletteColor:
		return ColorOf(n) == v.Color
	case RouletteColumn:
		return ColumnOf(n) == v.Column
	case RouletteDozen:
		return DozenOf(n) == v.Dozen
	case RouletteParity:
		if v.Odd {
			return n%2 != 0
		}
		return n%2 == 0
	case BetEven:
		return n%2 == 0
	case BetOdd:
		return n%2 != 0
	case BetBlock:
		return n/20 == v.Block
	case BetGreater:
		return n > v.Than
	case BetLess:
		return n < v.Than
	case DiceFace:
		return n == v.Face
	case RaffleTicket:
		return n == v.Number
	}
	return false
}

// Odd is the multiplier recorded on a bet when it is placed.
func Odd(r Rule) decimal.Decimal {
	switch v := r.(type) {
	case RouletteNumber:
		return decimal.NewFromInt(35)
	case RouletteColor, RouletteParity:
		return decimal.NewFromInt(2)
	case RouletteColumn, RouletteDozen:
		return decimal.NewFromInt(3)
	case BetEven, BetOdd, BetGreater, BetLess:
		return decimal.NewFromInt(2)
	case BetBlock:
		return decimal.NewFromInt(5)
	case DiceFace:
		return DiceMultiplier
	case BingoMachineCards:
		return MachineOdd(v.Cards)
	}
	return decimal.Zero
}

// Prize is stake × odd when won, zero otherwise.
func Prize(stake, odd decimal.Decimal, won bool) decimal.Decimal {
	if !won {
		return decimal.Zero
	}
	return models.RoundMoney(stake.Mul(odd))
}

func atoiRange(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("choice %q is not a number", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("choice %d outside [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// Choice is the canonical form of a rule's selection, stored on the bet and
// accepted again by Parse.
func Choice(r Rule) string {
	switch v := r.(type) {
	case RouletteNumber:
		return strconv.Itoa(v.Number)
	case RouletteColor:
		return string(v.Color)
	case RouletteColumn:
		return strconv.Itoa(v.Column)
	case RouletteDozen:
		for k, d := range dozens {
			if d == v.Dozen {
				return k
			}
		}
	case RouletteParity:
		if v.Odd {
			return "ODD"
		}
		return "EVEN"
	case BetBlock:
		return strconv.Itoa(v.Block * 20)
	case BetGreater:
		return strconv.Itoa(v.Than)
	case BetLess:
		return strconv.Itoa(v.Than)
	case DiceFace:
		return strconv.Itoa(v.Face)
	case RaffleTicket:
		return models.FormatTicket(v.Number)
	case BingoMachineCards:
		return strconv.Itoa(v.Cards)
	}
	return ""
}
