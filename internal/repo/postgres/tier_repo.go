package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
)

type TierRepo interface {
	ListActive(ctx context.Context) ([]domain.DiscountTier, error)
}

type TierRepoImpl struct{ pool *pgxpool.Pool }

func NewTierRepo(pool *pgxpool.Pool) *TierRepoImpl { return &TierRepoImpl{pool: pool} }

// ListActive returns the active reward catalog in tier order.
func (r *TierRepoImpl) ListActive(ctx context.Context) ([]domain.DiscountTier, error) {
	const q = `SELECT id, position, description, kind, value, active
  FROM discount_tiers WHERE active ORDER BY position`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []domain.DiscountTier
	for rows.Next() {
		var t domain.DiscountTier
		if err := rows.Scan(&t.ID, &t.Position, &t.Description, &t.Kind, &t.Value, &t.Active); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

var _ TierRepo = (*TierRepoImpl)(nil)
