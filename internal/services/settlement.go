package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/metrics"
	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/payout"
	"github.com/fairplay/roundhouse/internal/store"
)

// Settlement is the committed result of finalizing a round.
type Settlement struct {
	Round *models.Round   `json:"round"`
	Bets  []*models.Bet   `json:"bets"`
	Paid  decimal.Decimal `json:"paid"`
}

// SettlementEngine finalizes rounds: it draws the outcome, pays winners and
// closes the round in a single transaction.
type SettlementEngine struct {
	store       *store.Store
	pool        *NumberPool
	ledger      *LedgerService
	redis       *RedisService
	cards       payout.UserCardEvaluator
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewSettlementEngine(st *store.Store, pool *NumberPool, ledger *LedgerService, redis *RedisService, log *zap.Logger) *SettlementEngine {
	return &SettlementEngine{
		store:       st,
		pool:        pool,
		ledger:      ledger,
		redis:       redis,
		cards:       payout.NoWinEvaluator{},
		broadcaster: noopBroadcaster{},
		log:         log,
	}
}

func (e *SettlementEngine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

func (e *SettlementEngine) SetCardEvaluator(c payout.UserCardEvaluator) {
	e.cards = c
}

// Finalize settles an open round exactly once. A finalized round fails with
// models.ErrConflict and an unknown one with models.ErrNotFound. On any
// error nothing is written and the round stays open.
func (e *SettlementEngine) Finalize(ctx context.Context, roundID string) (*Settlement, error) {
	var (
		settlement *Settlement
		balances   = make(map[int64]decimal.Decimal)
		drawn      int
		credits    int
	)

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		round, err := e.store.LockRound(ctx, tx, roundID)
		if err != nil {
			return err
		}
		if !round.IsOpen() {
			return fmt.Errorf("round %s is %s: %w", roundID, round.State, models.ErrConflict)
		}

		bets, err := e.store.RoundBets(ctx, tx, roundID)
		if err != nil {
			return err
		}

		drawn, credits = 0, 0
		draw := func() (models.Draw, error) {
			d, err := e.pool.Take(ctx, tx, round.SeedID, round.ID)
			if err == nil {
				drawn++
			}
			return d, err
		}
		outcome, results, err := playRound(round, bets, draw, e.cards)
		if err != nil {
			return err
		}

		paid := decimal.Zero
		for _, r := range results {
			amount := models.RoundMoney(r.amount)
			if err := e.store.SettleBet(ctx, tx, r.bet.ID, amount, r.won); err != nil {
				return err
			}
			r.bet.ResultAmount = amount
			r.bet.Won = r.won

			if !amount.IsPositive() {
				continue
			}
			entry, err := e.ledger.Credit(ctx, tx, r.bet.UserID, amount, models.EntryRef{
				RoundID:     round.ID,
				BetID:       r.bet.ID,
				Description: fmt.Sprintf("%s prize", round.GameType),
			})
			if err != nil {
				return err
			}
			balances[r.bet.UserID] = entry.BalanceAfter
			paid = paid.Add(amount)
			credits++
		}

		at := nowUTC()
		if err := e.store.FinalizeRound(ctx, tx, round.ID, outcome, at); err != nil {
			return err
		}
		round.State = models.RoundFinalized
		round.Outcome = outcome
		round.FinalizedAt = &at

		settlement = &Settlement{Round: round, Bets: bets, Paid: paid}
		return nil
	})
	if err != nil {
		return nil, err
	}

	round := settlement.Round
	metrics.RoundsFinalized.WithLabelValues(string(round.GameType)).Inc()
	metrics.Draws.WithLabelValues(string(round.GameType)).Add(float64(drawn))
	metrics.BalanceChanges.WithLabelValues(string(models.EntryCredit)).Add(float64(credits))
	e.log.Info("round finalized",
		zap.String("round_id", round.ID),
		zap.String("game", string(round.GameType)),
		zap.Ints("numbers", round.Outcome.Numbers),
		zap.Int("bets", len(settlement.Bets)),
		zap.String("paid", models.FormatCurrency(settlement.Paid)))

	if e.redis != nil {
		if err := e.redis.CacheRound(ctx, round); err != nil {
			e.log.Warn("failed to cache round", zap.String("round_id", round.ID), zap.Error(err))
		}
	}
	e.broadcaster.BroadcastRoundFinalized(round)
	for userID, balance := range balances {
		e.broadcaster.BroadcastBalance(userID, balance)
	}

	return settlement, nil
}

// FinalizeDue settles every open round whose close time has passed or whose
// quota is reached. Rounds finalized concurrently by someone else are
// skipped.
func (e *SettlementEngine) FinalizeDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := e.store.DueRounds(ctx, e.store.DB(), now)
	if err != nil {
		return 0, err
	}

	var (
		done int
		errs []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		_, err := e.Finalize(ctx, id)
		switch {
		case err == nil:
			done++
		case errors.Is(err, models.ErrConflict):
			e.log.Debug("round already finalized", zap.String("round_id", id))
		default:
			e.log.Error("failed to finalize round", zap.String("round_id", id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return done, errors.Join(errs...)
}
