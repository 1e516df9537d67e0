package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/fairness"
	"github.com/fairplay/roundhouse/internal/metrics"
	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/store"
)

const anchorFetchTimeout = 15 * time.Second

// statsResponse is the part of the block explorer stats payload we read.
type statsResponse struct {
	Data struct {
		BestBlockHash string `json:"best_block_hash"`
	} `json:"data"`
}

// AnchorFeed polls the newest block hash, records every new one with an
// unmaterialized seed, and materializes pending seeds.
type AnchorFeed struct {
	store     *store.Store
	generator *fairness.Generator
	redis     *RedisService
	client    *http.Client
	url       string
	log       *zap.Logger

	mu     sync.RWMutex
	latest *models.Anchor
}

func NewAnchorFeed(st *store.Store, gen *fairness.Generator, redis *RedisService, url string, log *zap.Logger) *AnchorFeed {
	return &AnchorFeed{
		store:     st,
		generator: gen,
		redis:     redis,
		client:    &http.Client{Timeout: anchorFetchTimeout},
		url:       url,
		log:       log,
	}
}

// Poll fetches the current hash and observes it, then materializes every
// pending seed. Pending seeds are retried even while the source is down.
// Source failures are reported as models.ErrTransient; the next tick retries.
func (f *AnchorFeed) Poll(ctx context.Context) error {
	var errs []error

	hash, err := f.fetch(ctx)
	if err != nil {
		metrics.AnchorFetches.WithLabelValues("error").Inc()
		errs = append(errs, fmt.Errorf("anchor fetch: %v: %w", err, models.ErrTransient))
	} else {
		metrics.AnchorFetches.WithLabelValues("ok").Inc()
		if _, err := f.Observe(ctx, hash); err != nil {
			errs = append(errs, err)
		}
	}

	if err := f.MaterializePending(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (f *AnchorFeed) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var stats statsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&stats); err != nil {
		return "", fmt.Errorf("decode stats: %v", err)
	}

	hash := strings.TrimSpace(stats.Data.BestBlockHash)
	if hash == "" {
		return "", fmt.Errorf("response has no best_block_hash")
	}
	return hash, nil
}

// Observe records hash as the latest anchor. A hash seen before is not
// stored twice and gets no second seed.
func (f *AnchorFeed) Observe(ctx context.Context, hash string) (*models.Anchor, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, fmt.Errorf("empty anchor hash: %w", models.ErrInvalidInput)
	}

	var (
		anchor  *models.Anchor
		created bool
	)
	err := f.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		anchor, created, err = f.store.InsertAnchor(ctx, tx, hash, time.Now())
		if err != nil || !created {
			return err
		}
		_, err = f.store.InsertSeed(ctx, tx, anchor.ID, f.generator.Length())
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		f.log.Info("new anchor observed", zap.Int64("anchor_id", anchor.ID), zap.String("hash", hash))
	}

	f.mu.Lock()
	if f.latest == nil || anchor.ID >= f.latest.ID {
		f.latest = anchor
	}
	f.mu.Unlock()

	if f.redis != nil {
		if err := f.redis.StoreLatestAnchor(ctx, anchor); err != nil {
			f.log.Warn("failed to mirror anchor", zap.Error(err))
		}
	}
	return anchor, nil
}

// MaterializePending generates and stores the numbers of every seed that
// lacks them. Generation is all-or-nothing per seed; a failed seed stays
// pending for the next run.
func (f *AnchorFeed) MaterializePending(ctx context.Context) error {
	pending, err := f.store.PendingSeeds(ctx, f.store.DB())
	if err != nil {
		return err
	}

	var failed int
	for _, p := range pending {
		values, err := f.generator.Generate(p.Hash)
		if err != nil {
			failed++
			f.log.Error("seed generation failed", zap.Int64("seed_id", p.SeedID), zap.Error(err))
			continue
		}

		err = f.store.WithTx(ctx, func(tx *sql.Tx) error {
			return f.store.Materialize(ctx, tx, p.SeedID, values)
		})
		if err != nil {
			failed++
			f.log.Error("seed materialization failed", zap.Int64("seed_id", p.SeedID), zap.Error(err))
			continue
		}

		metrics.SeedsMaterialized.Inc()
		f.log.Info("seed materialized", zap.Int64("seed_id", p.SeedID), zap.Int("length", len(values)))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pending seeds not materialized", failed, len(pending))
	}
	return nil
}

// Latest returns the most recently observed anchor.
func (f *AnchorFeed) Latest(ctx context.Context) (*models.Anchor, error) {
	f.mu.RLock()
	latest := f.latest
	f.mu.RUnlock()
	if latest != nil {
		return latest, nil
	}

	if f.redis != nil {
		if a, err := f.redis.GetLatestAnchor(ctx); err == nil {
			return a, nil
		}
	}
	return f.store.LatestAnchor(ctx, f.store.DB())
}

// Verify recomputes the seed entry at seq for hash.
func (f *AnchorFeed) Verify(hash string, seq int) (*models.VerificationData, error) {
	if seq < 0 || seq >= f.generator.Length() {
		return nil, fmt.Errorf("seq %d outside [0, %d): %w", seq, f.generator.Length(), models.ErrInvalidInput)
	}
	value, err := fairness.At(hash, seq)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalidInput)
	}
	return &models.VerificationData{Hash: hash, Seq: seq, Value: value}, nil
}

// Audit compares the stored sequence of an anchor's seed with a fresh
// recomputation from its hash and reports which entries were consumed.
func (f *AnchorFeed) Audit(ctx context.Context, hash string) (*models.SeedAudit, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, fmt.Errorf("empty anchor hash: %w", models.ErrInvalidInput)
	}

	db := f.store.DB()
	anchor, err := f.store.AnchorByHash(ctx, db, hash)
	if err != nil {
		return nil, err
	}
	seed, err := f.store.SeedOfAnchor(ctx, db, anchor.ID)
	if err != nil {
		return nil, err
	}

	audit := &models.SeedAudit{Anchor: anchor, Seed: seed, Entries: []models.AuditEntry{}}
	if !seed.Materialized {
		return audit, nil
	}

	entries, err := f.store.SeedEntries(ctx, db, seed.ID)
	if err != nil {
		return nil, err
	}
	expected, err := fairness.NewGenerator(seed.Length).Generate(hash)
	if err != nil {
		return nil, fmt.Errorf("recompute seed %d: %w", seed.ID, err)
	}

	for i := range entries {
		e := &entries[i]
		if e.Seq < len(expected) {
			e.Expected = expected[e.Seq]
		}
		if e.Seq >= len(expected) || e.Value != e.Expected {
			audit.Mismatches = append(audit.Mismatches, e.Seq)
		}
		if e.RoundID != "" {
			audit.Consumed++
		}
	}
	audit.Entries = entries
	audit.Consistent = len(entries) == seed.Length && len(audit.Mismatches) == 0
	if !audit.Consistent {
		f.log.Warn("seed audit mismatch",
			zap.Int64("seed_id", seed.ID),
			zap.Int("entries", len(entries)),
			zap.Ints("mismatches", audit.Mismatches))
	}
	return audit, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
