package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcard/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account. Variant fields not set for the account type
// stay at their zero defaults.
func (r *Repository) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, type, email, name, password_hash, active, webhook_url, global_points, spend_unit_cents, points_per_unit)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, 0, $7, $8)
		RETURNING created_at, updated_at
	`, a.ID, a.Type, a.Email, a.Name, a.PasswordHash, a.WebhookURL, a.SpendUnitCents, a.PointsPerUnit).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// GetByEmail returns the account for login, or nil if the email is unknown.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, type, email, name, password_hash, active, webhook_url,
		       global_points, spend_unit_cents, points_per_unit, total_transactions, total_revenue_cents,
		       created_at, updated_at
		FROM accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.Type, &a.Email, &a.Name, &a.PasswordHash, &a.Active, &a.WebhookURL,
		&a.GlobalPoints, &a.SpendUnitCents, &a.PointsPerUnit, &a.TotalTransactions, &a.TotalRevenueCents,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
