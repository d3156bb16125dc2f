package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointcard/backend/internal/models"
	"github.com/pointcard/backend/internal/notify"
	"github.com/pointcard/backend/internal/repository"
)

// maxRetries bounds automatic retries of serialization failures.
const maxRetries = 3

// AccountRepo is the account interface the ledger needs. GetByIDForUpdate is
// the per-customer serialization point: every balance mutation takes the
// customer row lock first.
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	AddPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, points int) (int, error)
	DeductPoints(ctx context.Context, tx pgx.Tx, id uuid.UUID, points int) (int, error)
	IncrementBusinessStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) error
}

// BalanceRepo is the per-issuer partition interface.
type BalanceRepo interface {
	GetTx(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID) (*models.IssuerBalance, error)
	Add(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int) (int, error)
	Deduct(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int) (int, error)
}

// TransactionRepo appends to the audit log.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.PointsTransaction, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*models.PointsTransaction, error)
}

// TokenConsumer single-use-consumes an authorization token inside the credit
// transaction. Implemented by tokens.Service.
type TokenConsumer interface {
	Consume(ctx context.Context, tx pgx.Tx, tokenID, businessID uuid.UUID) (*models.AuthToken, error)
}

// Service owns all balance mutations. Credit, Debit and CreditBack are the
// only writers of global_points and issuer partitions; between operations
// the global balance always equals the sum of the partitions.
type Service struct {
	db           repository.TxBeginner
	accounts     AccountRepo
	balances     BalanceRepo
	transactions TransactionRepo
	tokens       TokenConsumer
	notifier     notify.Notifier
	log          *slog.Logger
}

func NewService(
	db repository.TxBeginner,
	accounts AccountRepo,
	balances BalanceRepo,
	transactions TransactionRepo,
	tokens TokenConsumer,
	notifier notify.Notifier,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:           db,
		accounts:     accounts,
		balances:     balances,
		transactions: transactions,
		tokens:       tokens,
		notifier:     notifier,
		log:          log,
	}
}

// CreditResult reports what a successful credit did to the customer balance.
type CreditResult struct {
	TransactionID  uuid.UUID `json:"transaction_id"`
	CustomerID     uuid.UUID `json:"customer_id"`
	PointsCredited int       `json:"points_credited"`
	BalanceBefore  int       `json:"balance_before"`
	BalanceAfter   int       `json:"balance_after"`
}

// Credit consumes the authorization token and credits the customer according
// to the business formula, all in one transaction: token consume, global and
// issuer balance update, business counters and ledger append either all
// commit or none do. pointsCredited = floor(amount/spendUnit) * pointsPerUnit;
// a zero-point credit from a small positive amount still succeeds.
func (s *Service) Credit(ctx context.Context, businessID, tokenID uuid.UUID, amountCents int64) (*CreditResult, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	business, err := s.accounts.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if business == nil || !business.IsBusiness() {
		return nil, ErrBusinessNotFound
	}
	// Registration guarantees a positive formula; a row violating that is not
	// a usable crediting business.
	if business.SpendUnitCents <= 0 || business.PointsPerUnit <= 0 {
		return nil, ErrBusinessNotFound
	}

	points := int(amountCents/business.SpendUnitCents) * business.PointsPerUnit

	var result *CreditResult
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
			token, err := s.tokens.Consume(ctx, tx, tokenID, businessID)
			if err != nil {
				return err
			}

			customer, err := s.accounts.GetByIDForUpdate(ctx, tx, token.CustomerID)
			if err != nil {
				return err
			}
			if customer == nil {
				return ErrCustomerNotFound
			}

			before := customer.GlobalPoints
			after, err := s.accounts.AddPoints(ctx, tx, customer.ID, points)
			if err != nil {
				return err
			}
			if _, err := s.balances.Add(ctx, tx, customer.ID, businessID, points); err != nil {
				return err
			}
			if err := s.accounts.IncrementBusinessStats(ctx, tx, businessID, amountCents); err != nil {
				return err
			}

			entry := &models.PointsTransaction{
				ID:            uuid.New(),
				CustomerID:    customer.ID,
				BusinessID:    businessID,
				EntryType:     models.TxEntryCredit,
				AmountCents:   amountCents,
				Points:        points,
				BalanceBefore: before,
				BalanceAfter:  after,
				TokenID:       &tokenID,
			}
			if err := s.transactions.CreateTx(ctx, tx, entry); err != nil {
				return err
			}

			result = &CreditResult{
				TransactionID:  entry.ID,
				CustomerID:     customer.ID,
				PointsCredited: points,
				BalanceBefore:  before,
				BalanceAfter:   after,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, result.CustomerID, notify.EventPointsCredited, map[string]any{
		"business_id":     businessID,
		"business_name":   business.Name,
		"points_credited": result.PointsCredited,
		"balance_after":   result.BalanceAfter,
	})
	return result, nil
}

// DebitResult reports the global balance around a debit.
type DebitResult struct {
	BalanceBefore int
	BalanceAfter  int
}

// Debit removes points from both the global balance and the issuer partition
// inside the caller's transaction. The issuer-scoped check is the binding
// one: a customer rich in points from other issuers still cannot spend at a
// business that never granted them. Shortfalls hard-fail; the partition is
// never clamped through this path.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int, redemptionID *uuid.UUID) (*DebitResult, error) {
	customer, err := s.accounts.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}
	if customer.GlobalPoints < points {
		return nil, &InsufficientBalanceError{Scope: ScopeGlobal, Required: points, Available: customer.GlobalPoints}
	}

	if _, err := s.balances.Deduct(ctx, tx, customerID, businessID, points); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			available := 0
			if b, berr := s.balances.GetTx(ctx, tx, customerID, businessID); berr == nil && b != nil {
				available = b.Points
			}
			return nil, &InsufficientBalanceError{Scope: ScopeIssuer, Required: points, Available: available}
		}
		return nil, err
	}

	after, err := s.accounts.DeductPoints(ctx, tx, customerID, points)
	if err != nil {
		return nil, err
	}

	entry := &models.PointsTransaction{
		ID:            uuid.New(),
		CustomerID:    customerID,
		BusinessID:    businessID,
		EntryType:     models.TxEntryRedemption,
		Points:        -points,
		BalanceBefore: customer.GlobalPoints,
		BalanceAfter:  after,
		RedemptionID:  redemptionID,
	}
	if err := s.transactions.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return &DebitResult{BalanceBefore: customer.GlobalPoints, BalanceAfter: after}, nil
}

// CreditBack reverses a debit during redemption cancellation, restoring both
// the global balance and the issuer partition and appending a reversal entry.
// Runs inside the caller's transaction so the compensation commits atomically
// with the redemption's state flip.
func (s *Service) CreditBack(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int, redemptionID uuid.UUID) error {
	customer, err := s.accounts.GetByIDForUpdate(ctx, tx, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return ErrCustomerNotFound
	}

	after, err := s.accounts.AddPoints(ctx, tx, customerID, points)
	if err != nil {
		return err
	}
	if _, err := s.balances.Add(ctx, tx, customerID, businessID, points); err != nil {
		return err
	}

	entry := &models.PointsTransaction{
		ID:            uuid.New(),
		CustomerID:    customerID,
		BusinessID:    businessID,
		EntryType:     models.TxEntryReversal,
		Points:        points,
		BalanceBefore: customer.GlobalPoints,
		BalanceAfter:  after,
		RedemptionID:  &redemptionID,
	}
	return s.transactions.CreateTx(ctx, tx, entry)
}

// History returns the ledger entries visible to the authenticated account:
// customers see their own, businesses see what they issued.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, accountType string) ([]*models.PointsTransaction, error) {
	if accountType == models.AccountTypeBusiness {
		return s.transactions.ListByBusiness(ctx, accountID)
	}
	return s.transactions.ListByCustomer(ctx, accountID)
}

// withRetry retries serialization failures a bounded number of times; other
// errors surface immediately.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn(ctx)
		if !repository.IsSerializationFailure(err) {
			return err
		}
		s.log.Warn("serialization failure, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
}
