package services_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/fairness"
	"github.com/fairplay/roundhouse/internal/metrics"
	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/services"
	"github.com/fairplay/roundhouse/internal/store"
)

var opening = decimal.NewFromInt(1000)

type testEnv struct {
	store  *store.Store
	pool   *services.NumberPool
	ledger *services.LedgerService
	rounds *services.RoundService
	engine *services.SettlementEngine
	pushes *recorder
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := zap.NewNop()
	pool := services.NewNumberPool(st)
	ledger := services.NewLedgerService(st, opening, log)
	rec := &recorder{balances: make(map[int64]decimal.Decimal)}

	rounds := services.NewRoundService(st, pool, ledger, nil, log)
	rounds.SetBroadcaster(rec)
	engine := services.NewSettlementEngine(st, pool, ledger, nil, log)
	engine.SetBroadcaster(rec)

	return &testEnv{store: st, pool: pool, ledger: ledger, rounds: rounds, engine: engine, pushes: rec}
}

// materialize stores values as the newest seed.
func (e *testEnv) materialize(t *testing.T, hash string, values []uint32) *models.Seed {
	t.Helper()
	ctx := context.Background()

	anchor, _, err := e.store.InsertAnchor(ctx, e.store.DB(), hash, time.Now())
	if err != nil {
		t.Fatalf("Failed to insert anchor: %v", err)
	}
	seed, err := e.store.InsertSeed(ctx, e.store.DB(), anchor.ID, len(values))
	if err != nil {
		t.Fatalf("Failed to insert seed: %v", err)
	}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.store.Materialize(ctx, tx, seed.ID, values)
	})
	if err != nil {
		t.Fatalf("Failed to materialize seed: %v", err)
	}
	return seed
}

func (e *testEnv) createRound(t *testing.T, req *models.CreateRoundRequest) *models.Round {
	t.Helper()
	round, err := e.rounds.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Failed to create %s round: %v", req.GameType, err)
	}
	return round
}

func (e *testEnv) bet(t *testing.T, roundID string, userID int64, stake, market, choice string) *models.Bet {
	t.Helper()
	b, err := e.rounds.PlaceBet(context.Background(), &models.BetRequest{
		RoundID: roundID,
		UserID:  userID,
		Stake:   decimal.RequireFromString(stake),
		Market:  market,
		Choice:  choice,
	})
	if err != nil {
		t.Fatalf("Failed to place %s bet: %v", market, err)
	}
	return b
}

func (e *testEnv) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to read balance: %v", err)
	}
	return b
}

// checkLedger asserts that the balance equals the opening balance plus
// every committed ledger entry.
func (e *testEnv) checkLedger(t *testing.T, userID int64) {
	t.Helper()
	sum, err := e.store.SumEntries(context.Background(), e.store.DB(), userID)
	if err != nil {
		t.Fatalf("Failed to sum ledger: %v", err)
	}
	if got, want := e.balance(t, userID), opening.Add(sum); !got.Equal(want) {
		t.Errorf("user %d balance %s, ledger says %s", userID, got, want)
	}
}

type recorder struct {
	mu        sync.Mutex
	finalized []string
	balances  map[int64]decimal.Decimal
}

func (r *recorder) BroadcastRoundFinalized(round *models.Round) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, round.ID)
}

func (r *recorder) BroadcastBalance(userID int64, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] = balance
}

func mustEqual(t *testing.T, what string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s: expected %s, got %s", what, want, got)
	}
}

func TestCreateRoundWithoutSeed(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.rounds.Create(context.Background(), &models.CreateRoundRequest{GameType: models.GameTypeRoulette})
	if models.Kind(err) != models.KindNotFound {
		t.Fatalf("Expected not found, got %v", err)
	}

	var n int
	if err := env.store.DB().QueryRow(`SELECT COUNT(*) FROM rounds`).Scan(&n); err != nil {
		t.Fatalf("Failed to count rounds: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no stored rounds, got %d", n)
	}
}

func TestCreateRoundValidation(t *testing.T) {
	env := setupTestEnv(t)
	env.materialize(t, "validation", []uint32{1})

	bad := []*models.CreateRoundRequest{
		{GameType: "poker"},
		{GameType: models.GameTypeDice, DiceMode: "quad"},
		{GameType: models.GameTypeRaffle, TicketPrice: decimal.NewFromInt(10), TotalTickets: 101},
		{GameType: models.GameTypeRaffle, TotalTickets: 10},
		{GameType: models.GameTypeBingo, BingoMode: models.BingoUser, CardSize: 16},
		{GameType: models.GameTypeRoulette, CloseAfter: -1},
	}
	for _, req := range bad {
		if _, err := env.rounds.Create(context.Background(), req); models.Kind(err) != models.KindInvalidInput {
			t.Errorf("%+v: expected invalid input, got %v", req, err)
		}
	}

	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeRoulette})
	if round.ClosesAt == nil || round.ClosesAt.Sub(round.CreatedAt) != 30*time.Second {
		t.Errorf("Roulette round should close after 30s, got %v", round.ClosesAt)
	}
	dice := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeDice})
	if dice.Params.DiceMode != models.DiceSingle {
		t.Errorf("Expected single dice by default, got %q", dice.Params.DiceMode)
	}
}

func TestRouletteColorBet(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "roulette", []uint32{1, 2})

	red := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeRoulette})
	env.bet(t, red.ID, 1, "10", "COLOR", "RED")
	mustEqual(t, "balance after stake", env.balance(t, 1), decimal.NewFromInt(990))

	settled, err := env.engine.Finalize(ctx, red.ID)
	if err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}
	if settled.Round.Outcome.Winning != "1 RED" {
		t.Errorf("Expected 1 RED, got %q", settled.Round.Outcome.Winning)
	}
	mustEqual(t, "prize on 1", settled.Bets[0].ResultAmount, decimal.NewFromInt(20))
	mustEqual(t, "balance after win", env.balance(t, 1), decimal.NewFromInt(1010))

	black := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeRoulette})
	env.bet(t, black.ID, 1, "10", "COLOR", "RED")
	settled, err = env.engine.Finalize(ctx, black.ID)
	if err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}
	if settled.Bets[0].Won || !settled.Bets[0].ResultAmount.IsZero() {
		t.Errorf("RED should lose on 2, got %+v", settled.Bets[0])
	}
	mustEqual(t, "balance after loss", env.balance(t, 1), decimal.NewFromInt(1000))
	env.checkLedger(t, 1)

	stored, err := env.rounds.Get(ctx, black.ID)
	if err != nil {
		t.Fatalf("Failed to get round: %v", err)
	}
	if stored.State != models.RoundFinalized || stored.Outcome.Numbers[0] != 2 {
		t.Errorf("Unexpected stored round %+v", stored)
	}

	if _, err := env.rounds.PlaceBet(ctx, &models.BetRequest{
		RoundID: black.ID, UserID: 1, Stake: decimal.NewFromInt(1), Market: "COLOR", Choice: "RED",
	}); models.Kind(err) != models.KindConflict {
		t.Errorf("Expected conflict betting on a finalized round, got %v", err)
	}
}

func TestRaffleTraditionalPrize(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "raffle", []uint32{1007})

	round := env.createRound(t, &models.CreateRoundRequest{
		GameType:     models.GameTypeRaffle,
		TicketPrice:  decimal.NewFromInt(10),
		TotalTickets: 100,
	})

	var winner *models.Bet
	for n := 0; n < 100; n++ {
		b := env.bet(t, round.ID, int64(n%5+1), "10", "TICKET", models.FormatTicket(n))
		if n == 7 {
			winner = b
		}
	}

	_, err := env.rounds.PlaceBet(ctx, &models.BetRequest{
		RoundID: round.ID, UserID: 9, Stake: decimal.NewFromInt(10), Market: "TICKET", Choice: "07",
	})
	if models.Kind(err) != models.KindConflict {
		t.Errorf("Expected conflict on a sold ticket, got %v", err)
	}

	done, err := env.engine.FinalizeDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("Failed to finalize due rounds: %v", err)
	}
	if done != 1 {
		t.Fatalf("Expected the sold out raffle to be due, finalized %d", done)
	}

	bets, err := env.rounds.ListBets(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to list bets: %v", err)
	}
	for _, b := range bets {
		if b.ID == winner.ID {
			mustEqual(t, "ticket 07 prize", b.ResultAmount, decimal.NewFromInt(700))
			continue
		}
		if b.Won {
			t.Errorf("Ticket %s should not win", b.Choice)
		}
	}

	stored, err := env.rounds.Get(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to get round: %v", err)
	}
	if stored.Outcome.Winning != "07" {
		t.Errorf("Expected winning ticket 07, got %q", stored.Outcome.Winning)
	}
	for u := int64(1); u <= 5; u++ {
		env.checkLedger(t, u)
	}
	// user 3 bought ticket 07 among 20 tickets
	mustEqual(t, "winner balance", env.balance(t, 3), decimal.NewFromInt(1000-200+700))
}

func TestConcurrentFinalizeSettlesOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "race", []uint32{1, 2, 3})

	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeRoulette})
	env.bet(t, round.ID, 1, "10", "NUMBER", "1")

	const callers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Finalize(ctx, round.ID)
			mu.Lock()
			defer mu.Unlock()
			switch models.Kind(err) {
			case "":
				ok++
			case models.KindConflict:
				conflicts++
			default:
				t.Errorf("Unexpected finalize error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != callers-1 {
		t.Fatalf("Expected one settlement and %d conflicts, got %d and %d", callers-1, ok, conflicts)
	}
	mustEqual(t, "balance", env.balance(t, 1), decimal.NewFromInt(1000-10+350))
	env.checkLedger(t, 1)

	if len(env.pushes.finalized) != 1 {
		t.Errorf("Expected one finalized push, got %d", len(env.pushes.finalized))
	}

	remaining, err := env.pool.Remaining(ctx, round.SeedID)
	if err != nil {
		t.Fatalf("Failed to read remaining: %v", err)
	}
	if remaining != 2 {
		t.Errorf("Expected one consumed entry, %d remaining", remaining)
	}
}

func TestInsufficientFundsLeavesNoTrace(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	seed := env.materialize(t, "broke", []uint32{1, 2, 3})

	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBingo, BingoMode: models.BingoMachine})
	drawsBefore := testutil.ToFloat64(metrics.Draws.WithLabelValues(string(models.GameTypeBingo)))
	debitsBefore := testutil.ToFloat64(metrics.BalanceChanges.WithLabelValues(string(models.EntryDebit)))
	_, err := env.rounds.PlaceBet(ctx, &models.BetRequest{
		RoundID: round.ID, UserID: 4, Stake: decimal.NewFromInt(5000), Market: "MACHINE", Choice: "2",
	})
	if models.Kind(err) != models.KindInsufficientFunds {
		t.Fatalf("Expected insufficient funds, got %v", err)
	}

	mustEqual(t, "balance", env.balance(t, 4), opening)
	bets, err := env.rounds.ListBets(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to list bets: %v", err)
	}
	if len(bets) != 0 {
		t.Errorf("Expected no bets, got %d", len(bets))
	}
	remaining, err := env.pool.Remaining(ctx, seed.ID)
	if err != nil {
		t.Fatalf("Failed to read remaining: %v", err)
	}
	if remaining != 3 {
		t.Errorf("Dealt cards should be rolled back, %d remaining", remaining)
	}
	if got := testutil.ToFloat64(metrics.Draws.WithLabelValues(string(models.GameTypeBingo))); got != drawsBefore {
		t.Errorf("Rolled back deals counted as draws: %v -> %v", drawsBefore, got)
	}
	if got := testutil.ToFloat64(metrics.BalanceChanges.WithLabelValues(string(models.EntryDebit))); got != debitsBefore {
		t.Errorf("Rolled back debit counted: %v -> %v", debitsBefore, got)
	}
}

func TestBingoMachineCards(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "bingo", []uint32{5, 76 + 9, 9})

	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBingo})
	b := env.bet(t, round.ID, 2, "10", "MACHINE", "2")
	if len(b.Dealt) != 2 || b.Dealt[0] != 5 || b.Dealt[1] != 9 {
		t.Fatalf("Expected cards [5 9], got %v", b.Dealt)
	}

	settled, err := env.engine.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}
	if settled.Round.Outcome.Winning != "9" {
		t.Errorf("Expected ball 9, got %q", settled.Round.Outcome.Winning)
	}
	mustEqual(t, "prize", settled.Bets[0].ResultAmount, decimal.NewFromInt(50))
	env.checkLedger(t, 2)
}

func TestDiceTripleBound(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	values, err := fairness.NewGenerator(200).Generate("dice-triple")
	if err != nil {
		t.Fatalf("Failed to generate: %v", err)
	}
	env.materialize(t, "dice-triple", values)

	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeDice, DiceMode: models.DiceTriple})
	stake := decimal.NewFromInt(2)
	for face := 1; face <= 6; face++ {
		env.bet(t, round.ID, int64(face), "2", "FACE", string(rune('0'+face)))
	}

	settled, err := env.engine.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}

	perBet := make(map[string]int)
	for _, d := range settled.Round.Outcome.Draws {
		perBet[d.BetID]++
	}
	limit := stake.Mul(decimal.NewFromInt(45))
	for _, b := range settled.Bets {
		if n := perBet[b.ID]; n == 0 || n > 9 || n%3 != 0 {
			t.Errorf("Bet %s drew %d dice", b.ID, n)
		}
		if b.ResultAmount.GreaterThan(limit) {
			t.Errorf("Bet %s paid %s above %s", b.ID, b.ResultAmount, limit)
		}
		env.checkLedger(t, b.UserID)
	}
}

func TestExhaustedSeedKeepsRoundOpen(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "short", []uint32{3})

	first := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	second := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	env.bet(t, second.ID, 1, "5", "ODD", "")

	if _, err := env.engine.Finalize(ctx, first.ID); err != nil {
		t.Fatalf("Failed to finalize first round: %v", err)
	}
	_, err := env.engine.Finalize(ctx, second.ID)
	if models.Kind(err) != models.KindExhausted {
		t.Fatalf("Expected exhausted, got %v", err)
	}

	round, err := env.rounds.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Failed to get round: %v", err)
	}
	if !round.IsOpen() {
		t.Errorf("Round should stay open after a failed finalize")
	}
	mustEqual(t, "balance", env.balance(t, 1), decimal.NewFromInt(995))

	if _, err := env.engine.Finalize(ctx, "missing"); models.Kind(err) != models.KindNotFound {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestCreateRoundOnUsedUpSeed(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "single", []uint32{1})

	first := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	if _, err := env.engine.Finalize(ctx, first.ID); err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}

	_, err := env.rounds.Create(ctx, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	if models.Kind(err) != models.KindExhausted {
		t.Fatalf("Expected exhausted, got %v", err)
	}
	var rounds int
	if err := env.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&rounds); err != nil {
		t.Fatalf("Failed to count rounds: %v", err)
	}
	if rounds != 1 {
		t.Errorf("Expected no new round, found %d", rounds)
	}

	fresh := env.materialize(t, "refill", []uint32{4, 5})
	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	if round.SeedID != fresh.ID {
		t.Errorf("Expected round on seed %d, got %d", fresh.ID, round.SeedID)
	}
	env.bet(t, round.ID, 1, "10", "EVEN", "")
	if _, err := env.engine.Finalize(ctx, round.ID); err != nil {
		t.Fatalf("Failed to finalize round on fresh seed: %v", err)
	}
	env.checkLedger(t, 1)
}

func TestConcurrentBetsNeverOverdraw(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.materialize(t, "crowd", []uint32{10})
	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeRoulette})

	const userID = 9
	if err := env.ledger.EnsureUser(ctx, userID); err != nil {
		t.Fatalf("Failed to open account: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		refused  int
		others   []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.rounds.PlaceBet(ctx, &models.BetRequest{
				RoundID: round.ID, UserID: userID, Stake: decimal.NewFromInt(300), Market: "COLOR", Choice: "RED",
			})
			mu.Lock()
			defer mu.Unlock()
			switch models.Kind(err) {
			case "":
				accepted++
			case models.KindInsufficientFunds:
				refused++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("Unexpected errors: %v", others)
	}
	if accepted != 3 || refused != 5 {
		t.Errorf("Expected 3 accepted and 5 refused, got %d and %d", accepted, refused)
	}
	mustEqual(t, "balance", env.balance(t, userID), decimal.NewFromInt(100))
	env.checkLedger(t, userID)

	bets, err := env.rounds.ListBets(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to list bets: %v", err)
	}
	if len(bets) != accepted {
		t.Errorf("Expected %d bets, got %d", accepted, len(bets))
	}
}
