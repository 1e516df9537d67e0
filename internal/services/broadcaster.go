package services

import (
	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/models"
)

// Broadcaster pushes committed state changes to connected clients.
type Broadcaster interface {
	BroadcastRoundFinalized(round *models.Round)
	BroadcastBalance(userID int64, balance decimal.Decimal)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastRoundFinalized(*models.Round)  {}
func (noopBroadcaster) BroadcastBalance(int64, decimal.Decimal) {}
