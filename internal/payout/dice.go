package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

// DiceMultiplier is paid per matched die.
var DiceMultiplier = decimal.NewFromInt(5)

// MaxDoubleAttempts caps the DOUBLE chain.
const MaxDoubleAttempts = 10

// DiceFace is a bet on one die face under the round's mode.
type DiceFace struct {
	Face int
	Mode models.DiceMode
}

func (DiceFace) Game() models.GameType { return models.GameTypeDice }
func (DiceFace) Market() string        { return "FACE" }
func (DiceFace) rule()                 {}

func parseDice(params models.RoundParams, market, choice string) (Rule, error) {
	if market != "FACE" {
		return nil, fmt.Errorf("unknown dice market")
	}
	if !params.DiceMode.Valid() {
		return nil, fmt.Errorf("round has no valid dice mode")
	}
	face, err := atoiRange(choice, 1, 6)
	if err != nil {
		return nil, err
	}
	return DiceFace{Face: face, Mode: params.DiceMode}, nil
}

// DiceAttempt is one throw of one, two or three dice.
type DiceAttempt []int

// Matches counts the dice in the attempt showing face.
func (a DiceAttempt) Matches(face int) int {
	n := 0
	for _, d := range a {
		if d == face {
			n++
		}
	}
	return n
}

// DiceThrower yields the next die face, typically from the number pool.
type DiceThrower func() (int, error)

// Throw runs the attempts a dice mode allows for a bet on face.
// DOUBLE chains while at least one die matches and stops quietly on
// models.ErrExhausted once an attempt has been thrown. TRIPLE throws three
// attempts and stops early on a perfect triple.
func Throw(mode models.DiceMode, face int, next DiceThrower) ([]DiceAttempt, error) {
	throw := func(dice int) (DiceAttempt, error) {
		a := make(DiceAttempt, 0, dice)
		for i := 0; i < dice; i++ {
			d, err := next()
			if err != nil {
				return nil, err
			}
			a = append(a, d)
		}
		return a, nil
	}

	switch mode {
	case models.DiceSingle:
		a, err := throw(1)
		if err != nil {
			return nil, err
		}
		return []DiceAttempt{a}, nil

	case models.DiceDouble:
		var attempts []DiceAttempt
		for len(attempts) < MaxDoubleAttempts {
			a, err := throw(2)
			if err != nil {
				if len(attempts) > 0 && models.Kind(err) == models.KindExhausted {
					break
				}
				return nil, err
			}
			attempts = append(attempts, a)
			if a.Matches(face) == 0 {
				break
			}
		}
		return attempts, nil

	case models.DiceTriple:
		var attempts []DiceAttempt
		for i := 0; i < 3; i++ {
			a, err := throw(3)
			if err != nil {
				return nil, err
			}
			attempts = append(attempts, a)
			if a.Matches(face) == 3 {
				break
			}
		}
		return attempts, nil
	}
	return nil, fmt.Errorf("dice mode %q: %w", mode, models.ErrInvalidInput)
}

// MatchedDice sums matches of face over every attempt.
func MatchedDice(attempts []DiceAttempt, face int) int {
	n := 0
	for _, a := range attempts {
		n += a.Matches(face)
	}
	return n
}

// DicePrize is stake × 5 × matched dice.
func DicePrize(stake decimal.Decimal, matched int) decimal.Decimal {
	if matched <= 0 {
		return decimal.Zero
	}
	return models.RoundMoney(stake.Mul(DiceMultiplier).Mul(decimal.NewFromInt(int64(matched))))
}
