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

type TokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo {
	return &TokenRepo{pool: pool}
}

func (r *TokenRepo) Create(ctx context.Context, t *models.AuthToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO auth_tokens (id, customer_id, customer_name, points_snapshot, issued_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, t.ID, t.CustomerID, t.CustomerName, t.PointsSnapshot, t.IssuedAt, t.ExpiresAt)
	return err
}

// GetByID returns the token, or nil if it does not exist (or was purged).
func (r *TokenRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuthToken, error) {
	var t models.AuthToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, customer_name, points_snapshot, issued_at, expires_at, consumed, consumed_by
		FROM auth_tokens WHERE id = $1
	`, id).Scan(&t.ID, &t.CustomerID, &t.CustomerName, &t.PointsSnapshot, &t.IssuedAt, &t.ExpiresAt, &t.Consumed, &t.ConsumedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Consume marks the token consumed if and only if it is unconsumed and not
// yet expired, in a single conditional update. Exactly one of two racing
// consumers can win. Returns the consumed token, or nil when the condition
// did not hold (caller disambiguates via GetByID).
func (r *TokenRepo) Consume(ctx context.Context, tx pgx.Tx, id, businessID uuid.UUID) (*models.AuthToken, error) {
	var t models.AuthToken
	err := tx.QueryRow(ctx, `
		UPDATE auth_tokens SET consumed = TRUE, consumed_by = $2
		WHERE id = $1 AND NOT consumed AND expires_at > now()
		RETURNING id, customer_id, customer_name, points_snapshot, issued_at, expires_at, consumed, consumed_by
	`, id, businessID).Scan(&t.ID, &t.CustomerID, &t.CustomerName, &t.PointsSnapshot, &t.IssuedAt, &t.ExpiresAt, &t.Consumed, &t.ConsumedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteExpired purges tokens that expired before the cutoff. Housekeeping
// only: validity checks never depend on this having run.
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
