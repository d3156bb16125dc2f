package redemption

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointcard/backend/internal/models"
)

// StockRepo is the inventory mutation interface, implemented by the reward
// repository with conditional updates.
type StockRepo interface {
	ReserveStock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	ReleaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// StockTracker is a thin accounting wrapper over reward inventory. It is not
// a concurrency primitive: callers hold the reward row lock before calling.
type StockTracker struct {
	repo StockRepo
}

func NewStockTracker(repo StockRepo) *StockTracker {
	return &StockTracker{repo: repo}
}

// Reserve takes one unit. Reports false when finite stock is exhausted;
// unlimited rewards always reserve.
func (t *StockTracker) Reserve(ctx context.Context, tx pgx.Tx, reward *models.Reward) (bool, error) {
	if reward.Unlimited() {
		return true, nil
	}
	return t.repo.ReserveStock(ctx, tx, reward.ID)
}

// Release returns one unit. No-op for unlimited rewards.
func (t *StockTracker) Release(ctx context.Context, tx pgx.Tx, reward *models.Reward) error {
	if reward.Unlimited() {
		return nil
	}
	return t.repo.ReleaseStock(ctx, tx, reward.ID)
}
