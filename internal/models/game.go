package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Round is one play cycle of a game, bound to exactly one seed.
type Round struct {
	ID          string       `json:"id"`
	GameType    GameType     `json:"game_type"`
	State       RoundState   `json:"state"`
	SeedID      int64        `json:"seed_id"`
	Params      RoundParams  `json:"params"`
	Outcome     RoundOutcome `json:"outcome"`
	Quota       int          `json:"quota,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosesAt    *time.Time   `json:"closes_at,omitempty"`
	FinalizedAt *time.Time   `json:"finalized_at,omitempty"`
}

func (r *Round) IsOpen() bool {
	return r.State == RoundOpen
}

// RoundParams is the per-game configuration fixed when the round is created.
type RoundParams struct {
	DiceMode     DiceMode        `json:"dice_mode,omitempty"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	TotalTickets int             `json:"total_tickets,omitempty"`
	Team         bool            `json:"team,omitempty"`
	BingoMode    BingoMode       `json:"bingo_mode,omitempty"`
	CardSize     int             `json:"card_size,omitempty"`
}

// RoundOutcome is written once, during the finalize transition.
type RoundOutcome struct {
	Numbers []int     `json:"numbers,omitempty"`
	Draws   []DrawRef `json:"draws,omitempty"`
	Winning string    `json:"winning,omitempty"`
}

// DrawRef ties an outcome number back to the seed entry it was taken from.
type DrawRef struct {
	Seq   int    `json:"seq"`
	Value uint32 `json:"value"`
	BetID string `json:"bet_id,omitempty"`
}

type CreateRoundRequest struct {
	GameType     GameType        `json:"game_type" binding:"required"`
	DiceMode     DiceMode        `json:"dice_mode"`
	TicketPrice  decimal.Decimal `json:"ticket_price"`
	TotalTickets int             `json:"total_tickets"`
	Team         bool            `json:"team"`
	BingoMode    BingoMode       `json:"bingo_mode"`
	CardSize     int             `json:"card_size"`
	CloseAfter   int             `json:"close_after_seconds"`
}
