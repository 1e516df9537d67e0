package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fairplay/roundhouse/internal/config"
	"github.com/fairplay/roundhouse/internal/models"
)

// RedisService mirrors hot read state and enforces rate limits. The
// database stays authoritative; every value here can be rebuilt from it.
type RedisService struct {
	client *redis.Client
}

func NewRedisService(ctx context.Context, cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) StoreLatestAnchor(ctx context.Context, anchor *models.Anchor) error {
	data, err := json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor: %v", err)
	}
	return s.client.Set(ctx, KeyLatestAnchor, data, 0).Err()
}

// GetLatestAnchor returns models.ErrNotFound when no anchor is mirrored.
func (s *RedisService) GetLatestAnchor(ctx context.Context) (*models.Anchor, error) {
	data, err := s.client.Get(ctx, KeyLatestAnchor).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest anchor: %v", err)
	}

	var anchor models.Anchor
	if err := json.Unmarshal([]byte(data), &anchor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal anchor: %v", err)
	}
	return &anchor, nil
}

// CacheRound stores a finalized round. Open rounds are never cached.
func (s *RedisService) CacheRound(ctx context.Context, round *models.Round) error {
	if round.IsOpen() {
		return nil
	}
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %v", err)
	}
	return s.client.Set(ctx, fmt.Sprintf(KeyFinalizedRound, round.ID), data, TTLFinalizedRound).Err()
}

func (s *RedisService) GetCachedRound(ctx context.Context, roundID string) (*models.Round, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyFinalizedRound, roundID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached round: %v", err)
	}

	var round models.Round
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round: %v", err)
	}
	return &round, nil
}

var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

// CheckRateLimit counts one action of a user and reports whether it is
// within limit for the current window.
func (s *RedisService) CheckRateLimit(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := rateLimitScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, userID int64, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, userID, action)).Err()
}

// RecordBetPattern keeps the most recent bets of a user for risk review.
func (s *RedisService) RecordBetPattern(ctx context.Context, userID int64, stake decimal.Decimal, gameType models.GameType) error {
	patternKey := fmt.Sprintf(KeyBetPatterns, userID)

	data, err := json.Marshal(map[string]interface{}{
		"stake":     stake,
		"game_type": gameType,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, patternKey, data)
	pipe.LTrim(ctx, patternKey, 0, BetPatternHistory-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisService) BetPatterns(ctx context.Context, userID int64) ([]string, error) {
	return s.client.LRange(ctx, fmt.Sprintf(KeyBetPatterns, userID), 0, -1).Result()
}
