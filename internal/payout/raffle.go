package payout

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

// TeamSize is the number of consecutive tickets forming one raffle team.
const TeamSize = 5

var (
	mainPrizeShare = decimal.RequireFromString("0.7")
	teamPoolShare  = decimal.RequireFromString("0.2")
)

// RaffleTicket is the purchase of one numbered ticket.
type RaffleTicket struct{ Number int }

func (RaffleTicket) Game() models.GameType { return models.GameTypeRaffle }
func (RaffleTicket) Market() string        { return "TICKET" }
func (RaffleTicket) rule()                 {}

func parseRaffle(params models.RoundParams, market, choice string) (Rule, error) {
	if market != "TICKET" {
		return nil, fmt.Errorf("unknown raffle market")
	}
	if params.TotalTickets <= 0 {
		return nil, fmt.Errorf("round has no tickets")
	}
	n, err := atoiRange(choice, 0, params.TotalTickets-1)
	if err != nil {
		return nil, err
	}
	return RaffleTicket{Number: n}, nil
}

// TeamOf returns the team index of a ticket.
func TeamOf(ticket int) int {
	return ticket / TeamSize
}

// SoldTicket links a sold ticket to the bet that bought it.
type SoldTicket struct {
	BetID  string
	Number int
}

// RaffleAwards computes the prize of every winning bet given the drawn ticket.
// Tickets that were not sold produce no award.
func RaffleAwards(params models.RoundParams, sold []SoldTicket, winning int) map[string]decimal.Decimal {
	awards := make(map[string]decimal.Decimal)

	var winner *SoldTicket
	for i := range sold {
		if sold[i].Number == winning {
			winner = &sold[i]
			break
		}
	}
	if winner == nil {
		return awards
	}

	if !params.Team {
		total := decimal.NewFromInt(int64(params.TotalTickets))
		awards[winner.BetID] = models.RoundMoney(params.TicketPrice.Mul(total).Mul(mainPrizeShare))
		return awards
	}

	gross := params.TicketPrice.Mul(decimal.NewFromInt(int64(len(sold))))
	awards[winner.BetID] = models.RoundMoney(gross.Mul(mainPrizeShare))

	var mates []SoldTicket
	for _, t := range sold {
		if t.Number != winning && TeamOf(t.Number) == TeamOf(winning) {
			mates = append(mates, t)
		}
	}
	if len(mates) == 0 {
		return awards
	}
	sort.Slice(mates, func(i, j int) bool { return mates[i].Number < mates[j].Number })

	share := models.RoundMoney(gross.Mul(teamPoolShare).Div(decimal.NewFromInt(int64(len(mates)))))
	for _, m := range mates {
		awards[m.BetID] = awards[m.BetID].Add(share)
	}
	return awards
}
