package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcard/backend/internal/models"
)

type RedemptionRepo struct {
	pool *pgxpool.Pool
}

func NewRedemptionRepo(pool *pgxpool.Pool) *RedemptionRepo {
	return &RedemptionRepo{pool: pool}
}

const redemptionColumns = `id, customer_id, business_id, reward_id, points_spent,
	balance_before, balance_after, code, status, delivered_at,
	reward_name, reward_description, reward_category, created_at, updated_at`

func scanRedemption(row pgx.Row) (*models.Redemption, error) {
	var d models.Redemption
	err := row.Scan(&d.ID, &d.CustomerID, &d.BusinessID, &d.RewardID, &d.PointsSpent,
		&d.BalanceBefore, &d.BalanceAfter, &d.Code, &d.Status, &d.DeliveredAt,
		&d.Reward.Name, &d.Reward.Description, &d.Reward.Category, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateTx inserts the redemption inside the caller's transaction, so the
// record only exists if the debit and stock reservation also commit.
func (r *RedemptionRepo) CreateTx(ctx context.Context, tx pgx.Tx, d *models.Redemption) error {
	return tx.QueryRow(ctx, `
		INSERT INTO redemptions (id, customer_id, business_id, reward_id, points_spent, balance_before, balance_after, code, status, reward_name, reward_description, reward_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, d.ID, d.CustomerID, d.BusinessID, d.RewardID, d.PointsSpent, d.BalanceBefore, d.BalanceAfter, d.Code, d.Status,
		d.Reward.Name, d.Reward.Description, d.Reward.Category).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// GetByID returns the redemption, or nil if absent.
func (r *RedemptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Redemption, error) {
	d, err := scanRedemption(r.pool.QueryRow(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// MarkDelivered flips pending -> delivered for the owning business in one
// conditional update. Reports false when the redemption was not pending (or
// not owned), leaving it untouched.
func (r *RedemptionRepo) MarkDelivered(ctx context.Context, id, businessID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE redemptions SET status = $3, delivered_at = $4, updated_at = now()
		WHERE id = $1 AND business_id = $2 AND status = $5
	`, id, businessID, models.RedemptionDelivered, at, models.RedemptionPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCancelledTx flips pending -> cancelled inside the caller's transaction
// so the flip commits atomically with the compensating re-credit.
func (r *RedemptionRepo) MarkCancelledTx(ctx context.Context, tx pgx.Tx, id, businessID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE redemptions SET status = $3, updated_at = now()
		WHERE id = $1 AND business_id = $2 AND status = $4
	`, id, businessID, models.RedemptionCancelled, models.RedemptionPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RedemptionRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Redemption, error) {
	return r.list(ctx, `customer_id`, customerID)
}

func (r *RedemptionRepo) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*models.Redemption, error) {
	return r.list(ctx, `business_id`, businessID)
}

func (r *RedemptionRepo) list(ctx context.Context, column string, id uuid.UUID) ([]*models.Redemption, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions WHERE `+column+` = $1 ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Redemption
	for rows.Next() {
		d, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
