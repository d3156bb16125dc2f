package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcard/backend/internal/models"
)

type RewardRepo struct {
	pool *pgxpool.Pool
}

func NewRewardRepo(pool *pgxpool.Pool) *RewardRepo {
	return &RewardRepo{pool: pool}
}

const rewardColumns = `id, business_id, name, description, category,
	points_required, stock, active, redemptions_count, created_at, updated_at`

func scanReward(row pgx.Row) (*models.Reward, error) {
	var w models.Reward
	err := row.Scan(&w.ID, &w.BusinessID, &w.Name, &w.Description, &w.Category,
		&w.PointsRequired, &w.Stock, &w.Active, &w.RedemptionsCount, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *RewardRepo) Create(ctx context.Context, w *models.Reward) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO rewards (id, business_id, name, description, category, points_required, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, w.ID, w.BusinessID, w.Name, w.Description, w.Category, w.PointsRequired, w.Stock, w.Active).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *RewardRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Reward, error) {
	w, err := scanReward(r.pool.QueryRow(ctx, `
		SELECT `+rewardColumns+` FROM rewards WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

// GetByIDForUpdate locks the reward row; stock reservation and release for
// the same reward serialize on this lock.
func (r *RewardRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Reward, error) {
	w, err := scanReward(tx.QueryRow(ctx, `
		SELECT `+rewardColumns+` FROM rewards WHERE id = $1 FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (r *RewardRepo) ListByBusiness(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]*models.Reward, error) {
	q := `SELECT ` + rewardColumns + ` FROM rewards WHERE business_id = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Reward
	for rows.Next() {
		w, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// ReserveStock decrements finite stock if any remains. Reports false when the
// reward is finite and sold out. Unlimited rewards are the caller's no-op.
func (r *RewardRepo) ReserveStock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE rewards SET stock = stock - 1, updated_at = now()
		WHERE id = $1 AND stock > 0
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseStock returns one unit of finite stock.
func (r *RewardRepo) ReleaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE rewards SET stock = stock + 1, updated_at = now()
		WHERE id = $1 AND stock >= 0
	`, id)
	return err
}

func (r *RewardRepo) IncrementRedemptions(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE rewards SET redemptions_count = redemptions_count + 1, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// DecrementRedemptions floors the counter at zero; it is informational and
// must never go negative.
func (r *RewardRepo) DecrementRedemptions(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE rewards SET redemptions_count = GREATEST(redemptions_count - 1, 0), updated_at = now()
		WHERE id = $1
	`, id)
	return err
}
