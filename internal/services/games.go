package services

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/payout"
)

// drawFunc takes the next entry from the round's seed.
type drawFunc func() (models.Draw, error)

type betResult struct {
	bet    *models.Bet
	amount decimal.Decimal
	won    bool
}

// playRound draws the outcome of a round and evaluates every bet on it.
func playRound(round *models.Round, bets []*models.Bet, draw drawFunc, cards payout.UserCardEvaluator) (models.RoundOutcome, []betResult, error) {
	var outcome models.RoundOutcome

	take := func(betID string) (int, error) {
		d, err := draw()
		if err != nil {
			return 0, err
		}
		n := payout.Transform(round.GameType, d.Value)
		outcome.Numbers = append(outcome.Numbers, n)
		outcome.Draws = append(outcome.Draws, models.DrawRef{Seq: d.Seq, Value: d.Value, BetID: betID})
		return n, nil
	}

	results := make([]betResult, 0, len(bets))
	switch round.GameType {
	case models.GameTypeRoulette, models.GameTypeBet:
		n, err := take("")
		if err != nil {
			return outcome, nil, err
		}
		if round.GameType == models.GameTypeRoulette {
			outcome.Winning = payout.RouletteWinning(n)
		} else {
			outcome.Winning = strconv.Itoa(n)
		}
		for _, b := range bets {
			rule, err := ruleOf(round, b)
			if err != nil {
				return outcome, nil, err
			}
			won := payout.Wins(rule, n)
			results = append(results, betResult{bet: b, won: won, amount: payout.Prize(b.Stake, b.Odd, won)})
		}

	case models.GameTypeDice:
		for _, b := range bets {
			rule, err := ruleOf(round, b)
			if err != nil {
				return outcome, nil, err
			}
			face := rule.(payout.DiceFace)
			attempts, err := payout.Throw(face.Mode, face.Face, func() (int, error) { return take(b.ID) })
			if err != nil {
				return outcome, nil, err
			}
			matched := payout.MatchedDice(attempts, face.Face)
			results = append(results, betResult{bet: b, won: matched > 0, amount: payout.DicePrize(b.Stake, matched)})
		}

	case models.GameTypeBingo:
		n, err := take("")
		if err != nil {
			return outcome, nil, err
		}
		outcome.Winning = strconv.Itoa(n)
		for _, b := range bets {
			var (
				won bool
				odd = b.Odd
			)
			if round.Params.BingoMode == models.BingoUser {
				won, odd = cards.Evaluate(b.Dealt, outcome.Numbers)
			} else {
				won = payout.MachineWins(b.Dealt, n)
			}
			results = append(results, betResult{bet: b, won: won, amount: payout.Prize(b.Stake, odd, won)})
		}

	case models.GameTypeRaffle:
		n, err := take("")
		if err != nil {
			return outcome, nil, err
		}
		outcome.Winning = models.FormatTicket(n)

		sold := make([]payout.SoldTicket, 0, len(bets))
		for _, b := range bets {
			rule, err := ruleOf(round, b)
			if err != nil {
				return outcome, nil, err
			}
			sold = append(sold, payout.SoldTicket{BetID: b.ID, Number: rule.(payout.RaffleTicket).Number})
		}
		awards := payout.RaffleAwards(round.Params, sold, n)
		for _, b := range bets {
			amount, won := awards[b.ID]
			results = append(results, betResult{bet: b, won: won, amount: amount})
		}

	default:
		return outcome, nil, fmt.Errorf("round %s has game type %q: %w", round.ID, round.GameType, models.ErrInvalidInput)
	}

	return outcome, results, nil
}

func ruleOf(round *models.Round, b *models.Bet) (payout.Rule, error) {
	rule, err := payout.Parse(round.GameType, round.Params, b.Market, b.Choice)
	if err != nil {
		return nil, fmt.Errorf("bet %s: %w", b.ID, err)
	}
	return rule, nil
}
