package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcard/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, type, email, name, password_hash, active, webhook_url,
	global_points, spend_unit_cents, points_per_unit, total_transactions, total_revenue_cents,
	created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Type, &a.Email, &a.Name, &a.PasswordHash, &a.Active, &a.WebhookURL,
		&a.GlobalPoints, &a.SpendUnitCents, &a.PointsPerUnit, &a.TotalTransactions, &a.TotalRevenueCents,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, type, email, name, password_hash, active, webhook_url, global_points, spend_unit_cents, points_per_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, a.ID, a.Type, a.Email, a.Name, a.PasswordHash, a.Active, a.WebhookURL, a.GlobalPoints, a.SpendUnitCents, a.PointsPerUnit).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
// Per-customer balance mutations take this lock first, which serializes
// concurrent credits/debits against the same customer.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// AddPoints adds points to a customer's global balance and returns the new balance.
func (r *AccountRepo) AddPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, points int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET global_points = global_points + $1, updated_at = now()
		WHERE id = $2
		RETURNING global_points
	`, points, id).Scan(&newBalance)
	return newBalance, err
}

// DeductPoints atomically deducts points from the global balance if it is
// sufficient. Returns pgx.ErrNoRows when the balance is short.
func (r *AccountRepo) DeductPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, points int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET global_points = global_points - $1, updated_at = now()
		WHERE id = $2 AND global_points >= $1
		RETURNING global_points
	`, points, id).Scan(&newBalance)
	return newBalance, err
}

// IncrementBusinessStats bumps the informational counters on a business
// account after a successful credit.
func (r *AccountRepo) IncrementBusinessStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts
		SET total_transactions = total_transactions + 1,
		    total_revenue_cents = total_revenue_cents + $1,
		    updated_at = now()
		WHERE id = $2
	`, amountCents, id)
	return err
}
