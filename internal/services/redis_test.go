package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/config"
	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/services"
)

func setupTestRedis(t *testing.T) *services.RedisService {
	t.Helper()
	cfg := &config.Config{
		RedisURL:  "localhost:6379",
		RedisPass: "",
		RedisDB:   0,
	}

	redisService, err := services.NewRedisService(context.Background(), cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { redisService.Close() })
	return redisService
}

func TestRedisRateLimit(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()
	userID := int64(999999)

	redisService.ClearRateLimit(ctx, userID, "bet")
	defer redisService.ClearRateLimit(ctx, userID, "bet")

	for i := 0; i < 3; i++ {
		allowed, err := redisService.CheckRateLimit(ctx, userID, "bet", 3, time.Minute)
		if err != nil {
			t.Fatalf("Failed to check rate limit: %v", err)
		}
		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	allowed, err := redisService.CheckRateLimit(ctx, userID, "bet", 3, time.Minute)
	if err != nil {
		t.Fatalf("Failed to check rate limit: %v", err)
	}
	if allowed {
		t.Error("Fourth request should be rate limited")
	}
}

func TestRedisAnchorAndRoundCache(t *testing.T) {
	redisService := setupTestRedis(t)
	ctx := context.Background()

	anchor := &models.Anchor{ID: 12, Hash: "00000000abc", ObservedAt: time.Now().UTC().Truncate(time.Second)}
	if err := redisService.StoreLatestAnchor(ctx, anchor); err != nil {
		t.Fatalf("Failed to store anchor: %v", err)
	}
	got, err := redisService.GetLatestAnchor(ctx)
	if err != nil {
		t.Fatalf("Failed to get anchor: %v", err)
	}
	if got.Hash != anchor.Hash || got.ID != anchor.ID {
		t.Errorf("Expected anchor %+v, got %+v", anchor, got)
	}

	open := &models.Round{ID: models.GenerateRoundID(), State: models.RoundOpen}
	if err := redisService.CacheRound(ctx, open); err != nil {
		t.Fatalf("Failed to cache round: %v", err)
	}
	if _, err := redisService.GetCachedRound(ctx, open.ID); models.Kind(err) != models.KindNotFound {
		t.Errorf("Open rounds must not be cached, got %v", err)
	}

	done := &models.Round{
		ID:      models.GenerateRoundID(),
		State:   models.RoundFinalized,
		Outcome: models.RoundOutcome{Numbers: []int{7}, Winning: "07"},
	}
	if err := redisService.CacheRound(ctx, done); err != nil {
		t.Fatalf("Failed to cache round: %v", err)
	}
	cached, err := redisService.GetCachedRound(ctx, done.ID)
	if err != nil {
		t.Fatalf("Failed to get cached round: %v", err)
	}
	if cached.Outcome.Winning != "07" {
		t.Errorf("Expected winning 07, got %q", cached.Outcome.Winning)
	}

	if err := redisService.RecordBetPattern(ctx, 999999, decimal.NewFromInt(5), models.GameTypeDice); err != nil {
		t.Fatalf("Failed to record bet pattern: %v", err)
	}
	patterns, err := redisService.BetPatterns(ctx, 999999)
	if err != nil {
		t.Fatalf("Failed to read bet patterns: %v", err)
	}
	if len(patterns) == 0 || len(patterns) > services.BetPatternHistory {
		t.Errorf("Unexpected pattern history length %d", len(patterns))
	}
}
