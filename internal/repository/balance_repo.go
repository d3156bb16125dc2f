package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcard/backend/internal/models"
)

// BalanceRepo persists per-issuer point partitions. All mutations run inside
// the caller's transaction while the customer row is locked, so the partition
// and the global total move together.
type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// Get returns the partition, or nil if the customer has never earned points
// from this business.
func (r *BalanceRepo) Get(ctx context.Context, customerID, businessID uuid.UUID) (*models.IssuerBalance, error) {
	var b models.IssuerBalance
	err := r.pool.QueryRow(ctx, `
		SELECT customer_id, business_id, points, last_updated
		FROM issuer_balances WHERE customer_id = $1 AND business_id = $2
	`, customerID, businessID).Scan(&b.CustomerID, &b.BusinessID, &b.Points, &b.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetTx reads the partition inside the caller's transaction.
func (r *BalanceRepo) GetTx(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID) (*models.IssuerBalance, error) {
	var b models.IssuerBalance
	err := tx.QueryRow(ctx, `
		SELECT customer_id, business_id, points, last_updated
		FROM issuer_balances WHERE customer_id = $1 AND business_id = $2
	`, customerID, businessID).Scan(&b.CustomerID, &b.BusinessID, &b.Points, &b.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Add credits points to the partition, creating it on first contact with the
// business. Returns the new partition balance.
func (r *BalanceRepo) Add(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int) (newPoints int, err error) {
	err = tx.QueryRow(ctx, `
		INSERT INTO issuer_balances (customer_id, business_id, points, last_updated)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (customer_id, business_id)
		DO UPDATE SET points = issuer_balances.points + EXCLUDED.points, last_updated = now()
		RETURNING points
	`, customerID, businessID, points).Scan(&newPoints)
	return newPoints, err
}

// Deduct atomically deducts points from the partition if it is sufficient.
// Returns pgx.ErrNoRows when the partition is short or absent.
func (r *BalanceRepo) Deduct(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int) (newPoints int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE issuer_balances SET points = points - $1, last_updated = now()
		WHERE customer_id = $2 AND business_id = $3 AND points >= $1
		RETURNING points
	`, points, customerID, businessID).Scan(&newPoints)
	return newPoints, err
}

// ListByCustomer returns all partitions for a customer, newest activity first.
func (r *BalanceRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.IssuerBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT customer_id, business_id, points, last_updated
		FROM issuer_balances WHERE customer_id = $1 ORDER BY last_updated DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.IssuerBalance
	for rows.Next() {
		var b models.IssuerBalance
		if err := rows.Scan(&b.CustomerID, &b.BusinessID, &b.Points, &b.LastUpdated); err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, rows.Err()
}
