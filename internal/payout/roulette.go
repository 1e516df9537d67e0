package payout

import (
	"fmt"
	"strings"

	"github.com/fairplay/roundhouse/internal/models"
)

type Color string

const (
	Green Color = "GREEN"
	Red   Color = "RED"
	Black Color = "BLACK"
)

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

func ColorOf(n int) Color {
	switch {
	case n == 0:
		return Green
	case redNumbers[n]:
		return Red
	default:
		return Black
	}
}

// ColumnOf returns 1..3 for the wheel column of n, 0 for zero.
func ColumnOf(n int) int {
	if n <= 0 || n > 36 {
		return 0
	}
	return (n-1)%3 + 1
}

// DozenOf returns 1..3 for the dozen of n, 0 for zero.
func DozenOf(n int) int {
	if n <= 0 || n > 36 {
		return 0
	}
	return (n-1)/12 + 1
}

type RouletteNumber struct{ Number int }
type RouletteColor struct{ Color Color }
type RouletteColumn struct{ Column int }
type RouletteDozen struct{ Dozen int }
type RouletteParity struct{ Odd bool }

func (RouletteNumber) Game() models.GameType { return models.GameTypeRoulette }
func (RouletteColor) Game() models.GameType  { return models.GameTypeRoulette }
func (RouletteColumn) Game() models.GameType { return models.GameTypeRoulette }
func (RouletteDozen) Game() models.GameType  { return models.GameTypeRoulette }
func (RouletteParity) Game() models.GameType { return models.GameTypeRoulette }

func (RouletteNumber) Market() string { return "NUMBER" }
func (RouletteColor) Market() string  { return "COLOR" }
func (RouletteColumn) Market() string { return "COLUMN" }
func (RouletteDozen) Market() string  { return "DOZEN" }
func (RouletteParity) Market() string { return "ODD_EVEN" }

func (RouletteNumber) rule() {}
func (RouletteColor) rule()  {}
func (RouletteColumn) rule() {}
func (RouletteDozen) rule()  {}
func (RouletteParity) rule() {}

var dozens = map[string]int{"1-12": 1, "13-24": 2, "25-36": 3}

func parseRoulette(market, choice string) (Rule, error) {
	switch market {
	case "NUMBER":
		n, err := atoiRange(choice, 0, 36)
		if err != nil {
			return nil, err
		}
		return RouletteNumber{Number: n}, nil
	case "COLOR":
		c := Color(strings.ToUpper(choice))
		if c != Red && c != Black {
			return nil, fmt.Errorf("color must be RED or BLACK, got %q", choice)
		}
		return RouletteColor{Color: c}, nil
	case "COLUMN":
		n, err := atoiRange(choice, 1, 3)
		if err != nil {
			return nil, err
		}
		return RouletteColumn{Column: n}, nil
	case "DOZEN":
		d, ok := dozens[choice]
		if !ok {
			return nil, fmt.Errorf("dozen must be one of 1-12, 13-24, 25-36, got %q", choice)
		}
		return RouletteDozen{Dozen: d}, nil
	case "ODD_EVEN":
		switch strings.ToUpper(choice) {
		case "ODD":
			return RouletteParity{Odd: true}, nil
		case "EVEN":
			return RouletteParity{Odd: false}, nil
		}
		return nil, fmt.Errorf("parity must be ODD or EVEN, got %q", choice)
	}
	return nil, fmt.Errorf("unknown roulette market")
}

// RouletteWinning describes a drawn number for round outcomes, e.g. "17 BLACK".
func RouletteWinning(n int) string {
	return fmt.Sprintf("%d %s", n, ColorOf(n))
}
