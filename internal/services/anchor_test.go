package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/fairness"
	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/services"
)

const blockHash = "000000000000000000023742dcd85e26c7adf4a7c712cf72cd55e8649e21e7cd"

func TestAnchorFeedPoll(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"blocks":870000,"best_block_hash":"` + blockHash + `"},"context":{}}`))
	}))
	defer srv.Close()

	gen := fairness.NewGenerator(64)
	feed := services.NewAnchorFeed(env.store, gen, nil, srv.URL, zap.NewNop())

	if err := feed.Poll(ctx); err != nil {
		t.Fatalf("Failed to poll: %v", err)
	}
	if err := feed.Poll(ctx); err != nil {
		t.Fatalf("Failed to poll again: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected 2 fetches, got %d", hits.Load())
	}

	latest, err := feed.Latest(ctx)
	if err != nil {
		t.Fatalf("Failed to get latest anchor: %v", err)
	}
	if latest.Hash != blockHash {
		t.Errorf("Expected latest hash %s, got %s", blockHash, latest.Hash)
	}

	var anchors, seeds int
	env.store.DB().QueryRow(`SELECT COUNT(*) FROM anchors`).Scan(&anchors)
	env.store.DB().QueryRow(`SELECT COUNT(*) FROM seeds WHERE materialized`).Scan(&seeds)
	if anchors != 1 || seeds != 1 {
		t.Errorf("Expected one anchor and one materialized seed, got %d and %d", anchors, seeds)
	}

	// the first draw of a round is entry 0 of the published sequence
	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	settled, err := env.engine.Finalize(ctx, round.ID)
	if err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}
	first := settled.Round.Outcome.Draws[0]
	want, err := fairness.At(blockHash, first.Seq)
	if err != nil {
		t.Fatalf("Failed to recompute: %v", err)
	}
	if first.Seq != 0 || first.Value != want {
		t.Errorf("Draw %+v does not match recomputed value %d", first, want)
	}

	v, err := feed.Verify(blockHash, first.Seq)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if v.Value != first.Value {
		t.Errorf("Verify returned %d, drawn %d", v.Value, first.Value)
	}
	if _, err := feed.Verify(blockHash, 64); models.Kind(err) != models.KindInvalidInput {
		t.Errorf("Expected invalid input past the sequence, got %v", err)
	}
}

func TestAnchorFeedSourceDown(t *testing.T) {
	env := setupTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	feed := services.NewAnchorFeed(env.store, fairness.NewGenerator(8), nil, srv.URL, zap.NewNop())
	err := feed.Poll(context.Background())
	if models.Kind(err) != models.KindTransient {
		t.Fatalf("Expected transient error, got %v", err)
	}
	if _, err := feed.Latest(context.Background()); models.Kind(err) != models.KindNotFound {
		t.Errorf("Expected no anchor, got %v", err)
	}
}

func TestAnchorFeedMaterializesWhileSourceDown(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	anchor, _, err := env.store.InsertAnchor(ctx, env.store.DB(), "pending-hash", time.Now())
	if err != nil {
		t.Fatalf("Failed to insert anchor: %v", err)
	}
	seed, err := env.store.InsertSeed(ctx, env.store.DB(), anchor.ID, 8)
	if err != nil {
		t.Fatalf("Failed to insert seed: %v", err)
	}

	feed := services.NewAnchorFeed(env.store, fairness.NewGenerator(8), nil, srv.URL, zap.NewNop())
	if err := feed.Poll(ctx); models.Kind(err) != models.KindTransient {
		t.Fatalf("Expected transient error, got %v", err)
	}

	got, err := env.store.GetSeed(ctx, env.store.DB(), seed.ID)
	if err != nil {
		t.Fatalf("Failed to load seed: %v", err)
	}
	if !got.Materialized {
		t.Errorf("Pending seed should be materialized while the source is down")
	}
}

func TestAnchorFeedAudit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	feed := services.NewAnchorFeed(env.store, fairness.NewGenerator(6), nil, "", zap.NewNop())

	if _, err := feed.Observe(ctx, "audit-hash"); err != nil {
		t.Fatalf("Failed to observe: %v", err)
	}
	audit, err := feed.Audit(ctx, "audit-hash")
	if err != nil {
		t.Fatalf("Failed to audit pending seed: %v", err)
	}
	if audit.Seed.Materialized || len(audit.Entries) != 0 || audit.Consistent {
		t.Errorf("Pending seed audit should be empty, got %+v", audit)
	}

	if err := feed.MaterializePending(ctx); err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}
	round := env.createRound(t, &models.CreateRoundRequest{GameType: models.GameTypeBet})
	if _, err := env.engine.Finalize(ctx, round.ID); err != nil {
		t.Fatalf("Failed to finalize: %v", err)
	}

	audit, err = feed.Audit(ctx, "audit-hash")
	if err != nil {
		t.Fatalf("Failed to audit: %v", err)
	}
	if !audit.Consistent || len(audit.Mismatches) != 0 {
		t.Fatalf("Expected consistent audit, mismatches %v", audit.Mismatches)
	}
	if len(audit.Entries) != 6 || audit.Consumed != 1 {
		t.Fatalf("Expected 6 entries with 1 consumed, got %d and %d", len(audit.Entries), audit.Consumed)
	}
	for _, e := range audit.Entries {
		want, err := fairness.At("audit-hash", e.Seq)
		if err != nil {
			t.Fatalf("Failed to recompute: %v", err)
		}
		if e.Value != want || e.Expected != want {
			t.Errorf("Entry %d: stored %d, expected %d, recomputed %d", e.Seq, e.Value, e.Expected, want)
		}
	}
	if audit.Entries[0].RoundID != round.ID {
		t.Errorf("Entry 0 should belong to round %s, got %q", round.ID, audit.Entries[0].RoundID)
	}

	if _, err := feed.Audit(ctx, "never-seen"); models.Kind(err) != models.KindNotFound {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestAuditFlagsTamperedEntry(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	feed := services.NewAnchorFeed(env.store, fairness.NewGenerator(4), nil, "", zap.NewNop())

	if _, err := feed.Observe(ctx, "tampered"); err != nil {
		t.Fatalf("Failed to observe: %v", err)
	}
	if err := feed.MaterializePending(ctx); err != nil {
		t.Fatalf("Failed to materialize: %v", err)
	}
	if _, err := env.store.DB().ExecContext(ctx, `UPDATE seed_numbers SET value = value + 1 WHERE seq = 2`); err != nil {
		t.Fatalf("Failed to tamper: %v", err)
	}

	audit, err := feed.Audit(ctx, "tampered")
	if err != nil {
		t.Fatalf("Failed to audit: %v", err)
	}
	if audit.Consistent || len(audit.Mismatches) != 1 || audit.Mismatches[0] != 2 {
		t.Errorf("Expected mismatch at 2, got %v", audit.Mismatches)
	}
}

func TestAnchorFeedRejectsEmptyHash(t *testing.T) {
	env := setupTestEnv(t)
	feed := services.NewAnchorFeed(env.store, fairness.NewGenerator(8), nil, "", zap.NewNop())

	if _, err := feed.Observe(context.Background(), "  "); models.Kind(err) != models.KindInvalidInput {
		t.Errorf("Expected invalid input, got %v", err)
	}
}
