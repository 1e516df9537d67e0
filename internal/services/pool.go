package services

import (
	"context"
	"database/sql"

	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/store"
)

// NumberPool hands out seed entries, each at most once across all rounds.
type NumberPool struct {
	store *store.Store
}

func NewNumberPool(st *store.Store) *NumberPool {
	return &NumberPool{store: st}
}

// Take claims the next entry of a seed for a round inside tx. It fails with
// models.ErrExhausted once every entry is consumed and models.ErrNotFound for
// an unknown or unmaterialized seed. The claim commits or rolls back with tx.
func (p *NumberPool) Take(ctx context.Context, tx *sql.Tx, seedID int64, roundID string) (models.Draw, error) {
	return p.store.ClaimNext(ctx, tx, seedID, roundID)
}

func (p *NumberPool) Remaining(ctx context.Context, seedID int64) (int, error) {
	seed, err := p.store.GetSeed(ctx, p.store.DB(), seedID)
	if err != nil {
		return 0, err
	}
	return seed.Remaining(), nil
}
