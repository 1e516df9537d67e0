package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/metrics"
	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/payout"
	"github.com/fairplay/roundhouse/internal/store"
)

// MaxRaffleTickets bounds a raffle to the two digit ticket space.
const MaxRaffleTickets = 100

// defaultCloseAfter is used when a create request gives no close time.
var defaultCloseAfter = map[models.GameType]time.Duration{
	models.GameTypeRoulette: 30 * time.Second,
}

type RoundService struct {
	store       *store.Store
	pool        *NumberPool
	ledger      *LedgerService
	redis       *RedisService
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewRoundService(st *store.Store, pool *NumberPool, ledger *LedgerService, redis *RedisService, log *zap.Logger) *RoundService {
	return &RoundService{
		store:       st,
		pool:        pool,
		ledger:      ledger,
		redis:       redis,
		broadcaster: noopBroadcaster{},
		log:         log,
	}
}

func (s *RoundService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Create opens a round on the newest materialized seed with entries left.
// Without a materialized seed it fails with models.ErrNotFound, and with
// models.ErrExhausted when all of them are used up. Nothing is stored then.
func (s *RoundService) Create(ctx context.Context, req *models.CreateRoundRequest) (*models.Round, error) {
	params, quota, err := roundParams(req)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	round := &models.Round{
		ID:        models.GenerateRoundID(),
		GameType:  req.GameType,
		State:     models.RoundOpen,
		Params:    params,
		Quota:     quota,
		CreatedAt: now,
	}
	closeAfter := time.Duration(req.CloseAfter) * time.Second
	if closeAfter == 0 {
		closeAfter = defaultCloseAfter[req.GameType]
	}
	if closeAfter > 0 {
		closesAt := now.Add(closeAfter)
		round.ClosesAt = &closesAt
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		seed, err := s.store.LatestUsableSeed(ctx, tx)
		if err != nil {
			return err
		}
		round.SeedID = seed.ID
		return s.store.InsertRound(ctx, tx, round)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("round created",
		zap.String("round_id", round.ID),
		zap.String("game", string(round.GameType)),
		zap.Int64("seed_id", round.SeedID))
	return round, nil
}

// roundParams validates the game configuration of a create request.
func roundParams(req *models.CreateRoundRequest) (models.RoundParams, int, error) {
	var params models.RoundParams
	invalid := func(format string, args ...interface{}) (models.RoundParams, int, error) {
		return params, 0, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrInvalidInput)
	}

	if !req.GameType.Valid() {
		return invalid("unknown game type %q", req.GameType)
	}
	if req.CloseAfter < 0 {
		return invalid("close_after_seconds must not be negative")
	}

	quota := 0
	switch req.GameType {
	case models.GameTypeDice:
		params.DiceMode = req.DiceMode
		if params.DiceMode == "" {
			params.DiceMode = models.DiceSingle
		}
		if !params.DiceMode.Valid() {
			return invalid("unknown dice mode %q", req.DiceMode)
		}

	case models.GameTypeRaffle:
		if !req.TicketPrice.IsPositive() {
			return invalid("ticket price must be positive")
		}
		if req.TotalTickets <= 0 || req.TotalTickets > MaxRaffleTickets {
			return invalid("total tickets must be within 1..%d", MaxRaffleTickets)
		}
		params.TicketPrice = models.RoundMoney(req.TicketPrice)
		params.TotalTickets = req.TotalTickets
		params.Team = req.Team
		quota = req.TotalTickets

	case models.GameTypeBingo:
		params.BingoMode = req.BingoMode
		if params.BingoMode == "" {
			params.BingoMode = models.BingoMachine
		}
		if !params.BingoMode.Valid() {
			return invalid("unknown bingo mode %q", req.BingoMode)
		}
		if params.BingoMode == models.BingoUser {
			if !payout.ValidCardSize(req.CardSize) {
				return invalid("card size must be 9 or 25")
			}
			params.CardSize = req.CardSize
		}
	}
	return params, quota, nil
}

// PlaceBet accepts a bet on an open round: the stake is debited and any
// numbers the purchase deals are taken from the pool, all in one
// transaction.
func (s *RoundService) PlaceBet(ctx context.Context, req *models.BetRequest) (*models.Bet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.ledger.EnsureUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	var (
		bet   *models.Bet
		round *models.Round
		entry *models.LedgerEntry
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		round, err = s.store.LockRound(ctx, tx, req.RoundID)
		if err != nil {
			return err
		}
		if !round.IsOpen() {
			return fmt.Errorf("round %s is %s: %w", round.ID, round.State, models.ErrConflict)
		}
		if round.ClosesAt != nil && !nowUTC().Before(*round.ClosesAt) {
			return fmt.Errorf("round %s closed for bets: %w", round.ID, models.ErrConflict)
		}

		rule, err := payout.Parse(round.GameType, round.Params, req.Market, req.Choice)
		if err != nil {
			return err
		}

		bet = &models.Bet{
			ID:        models.GenerateBetID(),
			RoundID:   round.ID,
			UserID:    req.UserID,
			Stake:     models.RoundMoney(req.Stake),
			Market:    rule.Market(),
			Choice:    payout.Choice(rule),
			Odd:       payout.Odd(rule),
			CreatedAt: nowUTC(),
		}
		if !bet.Stake.IsPositive() {
			return fmt.Errorf("stake rounds to zero: %w", models.ErrInvalidInput)
		}

		switch rule.(type) {
		case payout.RaffleTicket:
			if err := s.checkTicket(ctx, tx, round, bet.Choice); err != nil {
				return err
			}
			bet.Stake = round.Params.TicketPrice
		case payout.BingoMachineCards, payout.BingoUserCard:
			for i := 0; i < payout.Dealt(rule); i++ {
				d, err := s.pool.Take(ctx, tx, round.SeedID, round.ID)
				if err != nil {
					return err
				}
				bet.Dealt = append(bet.Dealt, payout.Transform(round.GameType, d.Value))
			}
		}

		entry, err = s.ledger.Debit(ctx, tx, req.UserID, bet.Stake, models.EntryRef{
			RoundID:     round.ID,
			BetID:       bet.ID,
			Description: fmt.Sprintf("%s stake", round.GameType),
		})
		if err != nil {
			return err
		}
		return s.store.InsertBet(ctx, tx, bet)
	})
	if err != nil {
		return nil, err
	}

	metrics.BetsPlaced.WithLabelValues(string(round.GameType)).Inc()
	metrics.BalanceChanges.WithLabelValues(string(models.EntryDebit)).Inc()
	if len(bet.Dealt) > 0 {
		metrics.Draws.WithLabelValues(string(round.GameType)).Add(float64(len(bet.Dealt)))
	}
	s.log.Info("bet placed",
		zap.String("round_id", round.ID),
		zap.String("bet_id", bet.ID),
		zap.Int64("user_id", bet.UserID),
		zap.String("market", bet.Market),
		zap.String("stake", models.FormatCurrency(bet.Stake)))

	if s.redis != nil {
		if err := s.redis.RecordBetPattern(ctx, bet.UserID, bet.Stake, round.GameType); err != nil {
			s.log.Warn("failed to record bet pattern", zap.Error(err))
		}
	}
	s.broadcaster.BroadcastBalance(bet.UserID, entry.BalanceAfter)

	return bet, nil
}

func (s *RoundService) checkTicket(ctx context.Context, tx *sql.Tx, round *models.Round, ticket string) error {
	sold, err := s.store.CountBets(ctx, tx, round.ID)
	if err != nil {
		return err
	}
	if round.Quota > 0 && sold >= round.Quota {
		return fmt.Errorf("round %s is sold out: %w", round.ID, models.ErrConflict)
	}
	taken, err := s.store.TicketSold(ctx, tx, round.ID, ticket)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("ticket %s of round %s already sold: %w", ticket, round.ID, models.ErrConflict)
	}
	return nil
}

func (s *RoundService) Get(ctx context.Context, roundID string) (*models.Round, error) {
	if s.redis != nil {
		if round, err := s.redis.GetCachedRound(ctx, roundID); err == nil {
			return round, nil
		}
	}

	round, err := s.store.GetRound(ctx, s.store.DB(), roundID)
	if err != nil {
		return nil, err
	}
	if s.redis != nil && !round.IsOpen() {
		if err := s.redis.CacheRound(ctx, round); err != nil {
			s.log.Warn("failed to cache round", zap.String("round_id", roundID), zap.Error(err))
		}
	}
	return round, nil
}

// Draws lists the seed entries a round consumed, dealt cards included.
func (s *RoundService) Draws(ctx context.Context, roundID string) ([]models.Draw, error) {
	if _, err := s.store.GetRound(ctx, s.store.DB(), roundID); err != nil {
		return nil, err
	}
	return s.store.RoundDraws(ctx, s.store.DB(), roundID)
}

func (s *RoundService) ListBets(ctx context.Context, roundID string) ([]*models.Bet, error) {
	if _, err := s.store.GetRound(ctx, s.store.DB(), roundID); err != nil {
		return nil, err
	}
	return s.store.RoundBets(ctx, s.store.DB(), roundID)
}
