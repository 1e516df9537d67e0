package payout

import (
	"fmt"

	"github.com/fairplay/roundhouse/internal/models"
)

// Generic bet markets over the 0..96 number space.
type BetEven struct{}
type BetOdd struct{}

// BetBlock covers one block of twenty numbers; Block is 0..4.
type BetBlock struct{ Block int }
type BetGreater struct{ Than int }
type BetLess struct{ Than int }

func (BetEven) Game() models.GameType    { return models.GameTypeBet }
func (BetOdd) Game() models.GameType     { return models.GameTypeBet }
func (BetBlock) Game() models.GameType   { return models.GameTypeBet }
func (BetGreater) Game() models.GameType { return models.GameTypeBet }
func (BetLess) Game() models.GameType    { return models.GameTypeBet }

func (BetEven) Market() string    { return "EVEN" }
func (BetOdd) Market() string     { return "ODD" }
func (BetBlock) Market() string   { return "BLOCK" }
func (BetGreater) Market() string { return "GREATER" }
func (BetLess) Market() string    { return "LESS" }

func (BetEven) rule()    {}
func (BetOdd) rule()     {}
func (BetBlock) rule()   {}
func (BetGreater) rule() {}
func (BetLess) rule()    {}

func parseBet(market, choice string) (Rule, error) {
	switch market {
	case "EVEN":
		return BetEven{}, nil
	case "ODD":
		return BetOdd{}, nil
	case "BLOCK":
		n, err := atoiRange(choice, 0, 99)
		if err != nil {
			return nil, err
		}
		return BetBlock{Block: n / 20}, nil
	case "GREATER":
		n, err := atoiRange(choice, 0, 95)
		if err != nil {
			return nil, err
		}
		return BetGreater{Than: n}, nil
	case "LESS":
		n, err := atoiRange(choice, 1, 96)
		if err != nil {
			return nil, err
		}
		return BetLess{Than: n}, nil
	}
	return nil, fmt.Errorf("unknown bet market")
}
