package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointcard/backend/internal/models"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidFormula is returned when a business registers without a valid points formula.
	ErrInvalidFormula = errors.New("spend_unit_cents and points_per_unit must be positive")
)

// RegisterInput carries the fields for either account variant. The formula
// fields are required for businesses and ignored for customers.
type RegisterInput struct {
	Email          string
	Password       string
	Name           string
	Type           string
	WebhookURL     *string
	SpendUnitCents int64
	PointsPerUnit  int
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*models.Account, error)
	Login(ctx context.Context, email, password string) (string, *models.Account, error)
	VerifyToken(token string) (uuid.UUID, string, error)
}

type service struct {
	repo   *Repository
	secret []byte
}

func NewService(repo *Repository, secret []byte) *service {
	return &service{repo: repo, secret: secret}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	AccountType string `json:"account_type"`
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	switch in.Type {
	case models.AccountTypeCustomer:
	case models.AccountTypeBusiness:
		if in.SpendUnitCents <= 0 || in.PointsPerUnit <= 0 {
			return nil, ErrInvalidFormula
		}
	default:
		return nil, errors.New("invalid account type")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acc := &models.Account{
		ID:           uuid.New(),
		Type:         in.Type,
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		Active:       true,
		WebhookURL:   in.WebhookURL,
	}
	if in.Type == models.AccountTypeBusiness {
		acc.SpendUnitCents = in.SpendUnitCents
		acc.PointsPerUnit = in.PointsPerUnit
	}

	if err := s.repo.Create(ctx, acc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return acc, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	acc, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if acc == nil || !acc.Active {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.issueToken(acc.ID, acc.Type)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

func (s *service) issueToken(accountID uuid.UUID, accountType string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		AccountType: accountType,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// VerifyToken implements middleware.TokenVerifier.
func (s *service) VerifyToken(token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.AccountType, nil
}
