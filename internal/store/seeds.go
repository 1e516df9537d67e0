package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fairplay/roundhouse/internal/models"
)

// InsertAnchor records hash once. created is false when the hash was
// already known, in which case the stored anchor is returned.
func (s *Store) InsertAnchor(ctx context.Context, q Querier, hash string, observedAt time.Time) (*models.Anchor, bool, error) {
	a := &models.Anchor{Hash: hash, ObservedAt: observedAt.UTC().Truncate(time.Microsecond)}
	err := q.QueryRowContext(ctx, `
		INSERT INTO anchors (hash, observed_at) VALUES ($1, $2)
		ON CONFLICT (hash) DO NOTHING
		RETURNING id`,
		a.Hash, a.ObservedAt,
	).Scan(&a.ID)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, classify(fmt.Errorf("insert anchor: %w", err))
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, hash, observed_at FROM anchors WHERE hash = $1`, hash,
	).Scan(&a.ID, &a.Hash, &a.ObservedAt)
	if err != nil {
		return nil, false, fmt.Errorf("load anchor: %w", err)
	}
	return a, false, nil
}

func (s *Store) LatestAnchor(ctx context.Context, q Querier) (*models.Anchor, error) {
	a := &models.Anchor{}
	err := q.QueryRowContext(ctx,
		`SELECT id, hash, observed_at FROM anchors ORDER BY id DESC LIMIT 1`,
	).Scan(&a.ID, &a.Hash, &a.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no anchor observed yet: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load latest anchor: %w", err)
	}
	return a, nil
}

const seedColumns = `id, anchor_id, length, next_seq, materialized, created_at`

func scanSeed(row scanner) (*models.Seed, error) {
	seed := &models.Seed{}
	err := row.Scan(&seed.ID, &seed.AnchorID, &seed.Length, &seed.Cursor, &seed.Materialized, &seed.CreatedAt)
	if err != nil {
		return nil, err
	}
	return seed, nil
}

// InsertSeed creates the unmaterialized seed of an anchor, or returns the
// existing one.
func (s *Store) InsertSeed(ctx context.Context, q Querier, anchorID int64, length int) (*models.Seed, error) {
	seed := &models.Seed{AnchorID: anchorID, Length: length, CreatedAt: now()}
	err := q.QueryRowContext(ctx, `
		INSERT INTO seeds (anchor_id, length, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (anchor_id) DO NOTHING
		RETURNING id`,
		anchorID, length, seed.CreatedAt,
	).Scan(&seed.ID)
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(fmt.Errorf("insert seed: %w", err))
	}
	seed, err = scanSeed(q.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM seeds WHERE anchor_id = $1`, anchorID))
	if err != nil {
		return nil, fmt.Errorf("load seed for anchor %d: %w", anchorID, err)
	}
	return seed, nil
}

func (s *Store) GetSeed(ctx context.Context, q Querier, id int64) (*models.Seed, error) {
	seed, err := scanSeed(q.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM seeds WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("seed %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load seed %d: %w", id, err)
	}
	return seed, nil
}

// LatestUsableSeed returns the newest materialized seed that still has
// entries left. It fails with models.ErrNotFound when nothing is
// materialized and with models.ErrExhausted when every materialized seed is
// used up.
func (s *Store) LatestUsableSeed(ctx context.Context, q Querier) (*models.Seed, error) {
	seed, err := scanSeed(q.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM seeds WHERE materialized AND next_seq < length ORDER BY id DESC LIMIT 1`))
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load latest seed: %w", err)
	}

	var materialized int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seeds WHERE materialized`).Scan(&materialized); err != nil {
		return nil, fmt.Errorf("count materialized seeds: %w", err)
	}
	if materialized == 0 {
		return nil, fmt.Errorf("no materialized seed: %w", models.ErrNotFound)
	}
	return nil, fmt.Errorf("all %d materialized seeds used up: %w", materialized, models.ErrExhausted)
}

// PendingSeeds lists seeds still waiting for their numbers, with the hash
// they derive from.
func (s *Store) PendingSeeds(ctx context.Context, q Querier) ([]PendingSeed, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.id, a.hash FROM seeds s
		JOIN anchors a ON a.id = s.anchor_id
		WHERE NOT s.materialized
		ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("list pending seeds: %w", err)
	}
	defer rows.Close()

	var pending []PendingSeed
	for rows.Next() {
		var p PendingSeed
		if err := rows.Scan(&p.SeedID, &p.Hash); err != nil {
			return nil, fmt.Errorf("scan pending seed: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

type PendingSeed struct {
	SeedID int64
	Hash   string
}

// Materialize stores the full number sequence of a seed and marks it usable.
// A seed is materialized at most once.
func (s *Store) Materialize(ctx context.Context, tx *sql.Tx, seedID int64, values []uint32) error {
	if len(values) == 0 {
		return fmt.Errorf("seed %d: empty sequence: %w", seedID, models.ErrInvalidInput)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO seed_numbers (seed_id, seq, value) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("prepare seed numbers: %w", err)
	}
	defer stmt.Close()

	for seq, v := range values {
		if _, err := stmt.ExecContext(ctx, seedID, seq, int64(v)); err != nil {
			return classify(fmt.Errorf("insert seed %d number %d: %w", seedID, seq, err))
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE seeds SET materialized = TRUE, length = $1 WHERE id = $2 AND NOT materialized`,
		len(values), seedID)
	if err != nil {
		return fmt.Errorf("mark seed %d materialized: %w", seedID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("seed %d already materialized: %w", seedID, models.ErrConflict)
	}
	return nil
}

// ClaimNext consumes the next unconsumed entry of a seed for roundID.
// The cursor update takes the seed row lock, so concurrent claims on one
// seed serialize and never observe the same entry.
func (s *Store) ClaimNext(ctx context.Context, tx *sql.Tx, seedID int64, roundID string) (models.Draw, error) {
	var next int
	err := tx.QueryRowContext(ctx, `
		UPDATE seeds SET next_seq = next_seq + 1
		WHERE id = $1 AND materialized AND next_seq < length
		RETURNING next_seq`,
		seedID,
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		seed, gerr := s.GetSeed(ctx, tx, seedID)
		if gerr != nil {
			return models.Draw{}, gerr
		}
		if !seed.Materialized {
			return models.Draw{}, fmt.Errorf("seed %d is not materialized: %w", seedID, models.ErrNotFound)
		}
		return models.Draw{}, fmt.Errorf("seed %d: %w", seedID, models.ErrExhausted)
	}
	if err != nil {
		return models.Draw{}, classify(fmt.Errorf("claim from seed %d: %w", seedID, err))
	}

	d := models.Draw{SeedID: seedID, Seq: next - 1}
	var value int64
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM seed_numbers WHERE seed_id = $1 AND seq = $2`,
		seedID, d.Seq,
	).Scan(&value)
	if err != nil {
		return models.Draw{}, fmt.Errorf("read seed %d entry %d: %w", seedID, d.Seq, err)
	}
	d.Value = uint32(value)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO draws (seed_id, seq, round_id, drawn_at) VALUES ($1, $2, $3, $4)`,
		seedID, d.Seq, roundID, now())
	if err != nil {
		return models.Draw{}, classify(fmt.Errorf("record draw %d/%d: %w", seedID, d.Seq, err))
	}
	return d, nil
}

// RoundDraws lists the entries consumed by a round, in claim order.
func (s *Store) RoundDraws(ctx context.Context, q Querier, roundID string) ([]models.Draw, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.seed_id, d.seq, n.value FROM draws d
		JOIN seed_numbers n ON n.seed_id = d.seed_id AND n.seq = d.seq
		WHERE d.round_id = $1
		ORDER BY d.seq`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list draws of round %s: %w", roundID, err)
	}
	defer rows.Close()

	var draws []models.Draw
	for rows.Next() {
		var (
			d     models.Draw
			value int64
		)
		if err := rows.Scan(&d.SeedID, &d.Seq, &value); err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}
		d.Value = uint32(value)
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

// AnchorByHash looks up an observed anchor.
func (s *Store) AnchorByHash(ctx context.Context, q Querier, hash string) (*models.Anchor, error) {
	a := &models.Anchor{}
	err := q.QueryRowContext(ctx,
		`SELECT id, hash, observed_at FROM anchors WHERE hash = $1`, hash,
	).Scan(&a.ID, &a.Hash, &a.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("anchor %q: %w", hash, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load anchor %q: %w", hash, err)
	}
	return a, nil
}

func (s *Store) SeedOfAnchor(ctx context.Context, q Querier, anchorID int64) (*models.Seed, error) {
	seed, err := scanSeed(q.QueryRowContext(ctx,
		`SELECT `+seedColumns+` FROM seeds WHERE anchor_id = $1`, anchorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("seed of anchor %d: %w", anchorID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load seed of anchor %d: %w", anchorID, err)
	}
	return seed, nil
}

// SeedEntries lists every stored entry of a seed in order, with the round
// that consumed it. Expected is left for the caller to fill.
func (s *Store) SeedEntries(ctx context.Context, q Querier, seedID int64) ([]models.AuditEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT n.seq, n.value, COALESCE(d.round_id, '') FROM seed_numbers n
		LEFT JOIN draws d ON d.seed_id = n.seed_id AND d.seq = n.seq
		WHERE n.seed_id = $1
		ORDER BY n.seq`, seedID)
	if err != nil {
		return nil, fmt.Errorf("list entries of seed %d: %w", seedID, err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e     models.AuditEntry
			value int64
		)
		if err := rows.Scan(&e.Seq, &value, &e.RoundID); err != nil {
			return nil, fmt.Errorf("scan seed entry: %w", err)
		}
		e.Value = uint32(value)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
