package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcard/backend/internal/models"
)

// TransactionRepo persists the append-only points ledger. There is no update
// or delete: corrections are reversal entries.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO points_transactions (id, customer_id, business_id, entry_type, amount_cents, points, balance_before, balance_after, token_id, redemption_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, t.ID, t.CustomerID, t.BusinessID, t.EntryType, t.AmountCents, t.Points, t.BalanceBefore, t.BalanceAfter, t.TokenID, t.RedemptionID).Scan(&t.CreatedAt)
}

func (r *TransactionRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.PointsTransaction, error) {
	return r.list(ctx, `customer_id`, customerID)
}

func (r *TransactionRepo) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*models.PointsTransaction, error) {
	return r.list(ctx, `business_id`, businessID)
}

func (r *TransactionRepo) list(ctx context.Context, column string, id uuid.UUID) ([]*models.PointsTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, business_id, entry_type, amount_cents, points, balance_before, balance_after, token_id, redemption_id, created_at
		FROM points_transactions WHERE `+column+` = $1 ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointsTransaction
	for rows.Next() {
		var t models.PointsTransaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.BusinessID, &t.EntryType, &t.AmountCents, &t.Points, &t.BalanceBefore, &t.BalanceAfter, &t.TokenID, &t.RedemptionID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
