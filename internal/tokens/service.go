package tokens

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointcard/backend/internal/models"
)

// Token lifecycle errors.
var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenConsumed    = errors.New("token already consumed")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrAccountInactive  = errors.New("account inactive")
)

// DefaultTTL is the authorization window a customer has to present the QR
// code to a business.
const DefaultTTL = 30 * time.Second

// TokenRepo is the persistence interface for authorization tokens.
type TokenRepo interface {
	Create(ctx context.Context, t *models.AuthToken) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuthToken, error)
	Consume(ctx context.Context, tx pgx.Tx, id, businessID uuid.UUID) (*models.AuthToken, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountRepo resolves customer accounts for issuance and validation.
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Service is the token authority: it issues ephemeral tokens bound to a
// customer and single-use-consumes them on behalf of a crediting business.
type Service struct {
	tokens   TokenRepo
	accounts AccountRepo
	ttl      time.Duration
	log      *slog.Logger
}

func NewService(tokens TokenRepo, accounts AccountRepo, ttl time.Duration, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{tokens: tokens, accounts: accounts, ttl: ttl, log: log}
}

// TokenView is what the customer's device renders. The snapshot fields are
// advisory display data, never authoritative.
type TokenView struct {
	TokenID        uuid.UUID `json:"token_id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	CustomerName   string    `json:"customer_name"`
	PointsSnapshot int       `json:"points_snapshot"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	QRPayload      string    `json:"qr_payload"`
}

// qrPayload is the envelope embedded in the rendered QR code.
type qrPayload struct {
	TokenID    uuid.UUID `json:"token_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Issue creates a token with the configured TTL and a frozen display snapshot
// of the customer. No side effect on balances.
func (s *Service) Issue(ctx context.Context, customerID uuid.UUID) (*TokenView, error) {
	acc, err := s.accounts.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if acc == nil || !acc.IsCustomer() {
		return nil, ErrCustomerNotFound
	}
	if !acc.Active {
		return nil, ErrAccountInactive
	}

	now := time.Now().UTC()
	t := &models.AuthToken{
		ID:             uuid.New(),
		CustomerID:     acc.ID,
		CustomerName:   acc.Name,
		PointsSnapshot: acc.GlobalPoints,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(qrPayload{TokenID: t.ID, CustomerID: t.CustomerID, ExpiresAt: t.ExpiresAt})
	if err != nil {
		return nil, err
	}
	return &TokenView{
		TokenID:        t.ID,
		CustomerID:     t.CustomerID,
		CustomerName:   t.CustomerName,
		PointsSnapshot: t.PointsSnapshot,
		IssuedAt:       t.IssuedAt,
		ExpiresAt:      t.ExpiresAt,
		QRPayload:      base64.StdEncoding.EncodeToString(payload),
	}, nil
}

// Validation is the read-only outcome of a successful Validate.
type Validation struct {
	TokenID        uuid.UUID `json:"token_id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	CustomerName   string    `json:"customer_name"`
	PointsSnapshot int       `json:"points_snapshot"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Validate checks a token without consuming it. Expiry is checked against the
// clock, never against whether the sweep has purged the row.
func (s *Service) Validate(ctx context.Context, tokenID uuid.UUID) (*Validation, error) {
	t, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTokenNotFound
	}
	if t.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	if t.Consumed {
		return nil, ErrTokenConsumed
	}
	acc, err := s.accounts.GetByID(ctx, t.CustomerID)
	if err != nil {
		return nil, err
	}
	if acc == nil || !acc.Active {
		return nil, ErrAccountInactive
	}
	return &Validation{
		TokenID:        t.ID,
		CustomerID:     t.CustomerID,
		CustomerName:   t.CustomerName,
		PointsSnapshot: t.PointsSnapshot,
		ExpiresAt:      t.ExpiresAt,
	}, nil
}

// Consume atomically marks the token consumed on behalf of the business.
// The check-and-set is a single conditional update, so two concurrent
// consumers of the same token resolve to exactly one winner. Runs inside the
// caller's credit transaction; any later failure rolls the consume back too.
func (s *Service) Consume(ctx context.Context, tx pgx.Tx, tokenID, businessID uuid.UUID) (*models.AuthToken, error) {
	t, err := s.tokens.Consume(ctx, tx, tokenID, businessID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, s.consumeFailure(ctx, tokenID)
	}

	acc, err := s.accounts.GetByID(ctx, t.CustomerID)
	if err != nil {
		return nil, err
	}
	if acc == nil || !acc.Active {
		return nil, ErrAccountInactive
	}
	return t, nil
}

// consumeFailure disambiguates a lost check-and-set into a specific error.
func (s *Service) consumeFailure(ctx context.Context, tokenID uuid.UUID) error {
	t, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	switch {
	case t == nil:
		return ErrTokenNotFound
	case t.Expired(time.Now()):
		return ErrTokenExpired
	default:
		return ErrTokenConsumed
	}
}
