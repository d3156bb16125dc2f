package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pointcard/backend/internal/ledger"
	"github.com/pointcard/backend/internal/models"
	"github.com/pointcard/backend/internal/notify"
	"github.com/pointcard/backend/internal/repository"
)

var (
	// ErrRewardNotFound is returned when the reward does not exist.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrRewardInactive is returned when the reward is disabled in the catalog.
	ErrRewardInactive = errors.New("reward is not active")
	// ErrRewardOutOfStock is returned when finite stock is exhausted.
	ErrRewardOutOfStock = errors.New("reward is out of stock")
	// ErrRedemptionNotFound is returned when the redemption does not exist or
	// belongs to another business.
	ErrRedemptionNotFound = errors.New("redemption not found")
	// ErrRedemptionAlreadyTerminal is returned on any transition attempt out
	// of delivered or cancelled.
	ErrRedemptionAlreadyTerminal = errors.New("redemption already delivered or cancelled")
)

const maxRetries = 3

// RewardRepo is the catalog interface the engine reads and the stock/counter
// interface it mutates.
type RewardRepo interface {
	Create(ctx context.Context, w *models.Reward) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reward, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Reward, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]*models.Reward, error)
	IncrementRedemptions(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	DecrementRedemptions(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// RedemptionRepo persists redemption records and their guarded state flips.
type RedemptionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, d *models.Redemption) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Redemption, error)
	MarkDelivered(ctx context.Context, id, businessID uuid.UUID, at time.Time) (bool, error)
	MarkCancelledTx(ctx context.Context, tx pgx.Tx, id, businessID uuid.UUID) (bool, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Redemption, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*models.Redemption, error)
}

// Ledger is the points ledger interface the engine debits and compensates
// through. Implemented by ledger.Service.
type Ledger interface {
	Debit(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int, redemptionID *uuid.UUID) (*ledger.DebitResult, error)
	CreditBack(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID, points int, redemptionID uuid.UUID) error
}

// Service drives the redemption state machine: pending -> delivered or
// pending -> cancelled, with compensating reversal on cancellation.
type Service struct {
	db          repository.TxBeginner
	rewards     RewardRepo
	redemptions RedemptionRepo
	stock       *StockTracker
	ledger      Ledger
	notifier    notify.Notifier
	log         *slog.Logger
}

func NewService(
	db repository.TxBeginner,
	rewards RewardRepo,
	redemptions RedemptionRepo,
	stock *StockTracker,
	ledger Ledger,
	notifier notify.Notifier,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:          db,
		rewards:     rewards,
		redemptions: redemptions,
		stock:       stock,
		ledger:      ledger,
		notifier:    notifier,
		log:         log,
	}
}

// Redeem exchanges points for a reward. The debit, stock reservation,
// counter bump and redemption insert run in one transaction: there is no
// window where points are spent but no stock was reserved, or the other way
// round. Lock order is reward row first, then customer row.
func (s *Service) Redeem(ctx context.Context, customerID, rewardID uuid.UUID) (*models.Redemption, error) {
	var created *models.Redemption
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
			reward, err := s.rewards.GetByIDForUpdate(ctx, tx, rewardID)
			if err != nil {
				return err
			}
			if reward == nil {
				return ErrRewardNotFound
			}
			if !reward.Active {
				return ErrRewardInactive
			}
			if !reward.InStock() {
				return ErrRewardOutOfStock
			}

			redemptionID := uuid.New()
			debit, err := s.ledger.Debit(ctx, tx, customerID, reward.BusinessID, reward.PointsRequired, &redemptionID)
			if err != nil {
				return err
			}

			ok, err := s.stock.Reserve(ctx, tx, reward)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRewardOutOfStock
			}
			if err := s.rewards.IncrementRedemptions(ctx, tx, reward.ID); err != nil {
				return err
			}

			code, err := generateCode()
			if err != nil {
				return err
			}
			created = &models.Redemption{
				ID:            redemptionID,
				CustomerID:    customerID,
				BusinessID:    reward.BusinessID,
				RewardID:      reward.ID,
				PointsSpent:   reward.PointsRequired,
				BalanceBefore: debit.BalanceBefore,
				BalanceAfter:  debit.BalanceAfter,
				Code:          code,
				Status:        models.RedemptionPending,
				Reward:        reward.Snapshot(),
			}
			return s.redemptions.CreateTx(ctx, tx, created)
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, created.BusinessID, notify.EventRedemptionCreated, map[string]any{
		"redemption_id": created.ID,
		"customer_id":   created.CustomerID,
		"reward_name":   created.Reward.Name,
		"code":          created.Code,
	})
	return created, nil
}

// MarkDelivered transitions pending -> delivered for the owning business.
// The flip is a conditional update keyed on the pending status, so a racing
// cancel and deliver resolve to one winner.
func (s *Service) MarkDelivered(ctx context.Context, redemptionID, businessID uuid.UUID) (*models.Redemption, error) {
	d, err := s.redemptions.GetByID(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if d == nil || d.BusinessID != businessID {
		return nil, ErrRedemptionNotFound
	}

	ok, err := s.redemptions.MarkDelivered(ctx, redemptionID, businessID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRedemptionAlreadyTerminal
	}

	d, err = s.redemptions.GetByID(ctx, redemptionID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, d.CustomerID, notify.EventRedemptionDelivered, map[string]any{
		"redemption_id": d.ID,
		"reward_name":   d.Reward.Name,
	})
	return d, nil
}

// Cancel compensates a pending redemption: the state flip, the re-credit of
// both balances, the stock release and the counter decrement commit as one
// transaction. A redemption can never end up cancelled with points kept, nor
// pending with points already returned.
func (s *Service) Cancel(ctx context.Context, redemptionID, businessID uuid.UUID) (*models.Redemption, error) {
	d, err := s.redemptions.GetByID(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if d == nil || d.BusinessID != businessID {
		return nil, ErrRedemptionNotFound
	}
	if d.Terminal() {
		return nil, ErrRedemptionAlreadyTerminal
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		return repository.InTx(ctx, s.db, func(tx pgx.Tx) error {
			// Same lock order as Redeem: reward row, then customer row.
			reward, err := s.rewards.GetByIDForUpdate(ctx, tx, d.RewardID)
			if err != nil {
				return err
			}

			ok, err := s.redemptions.MarkCancelledTx(ctx, tx, redemptionID, businessID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRedemptionAlreadyTerminal
			}

			if err := s.ledger.CreditBack(ctx, tx, d.CustomerID, d.BusinessID, d.PointsSpent, d.ID); err != nil {
				return err
			}

			// The reward may have been removed from the catalog since; the
			// refund still stands.
			if reward != nil {
				if err := s.stock.Release(ctx, tx, reward); err != nil {
					return err
				}
				if err := s.rewards.DecrementRedemptions(ctx, tx, reward.ID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	d, err = s.redemptions.GetByID(ctx, redemptionID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, d.CustomerID, notify.EventRedemptionCancelled, map[string]any{
		"redemption_id":   d.ID,
		"reward_name":     d.Reward.Name,
		"points_returned": d.PointsSpent,
	})
	return d, nil
}

// History returns redemptions visible to the authenticated account.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, accountType string) ([]*models.Redemption, error) {
	if accountType == models.AccountTypeBusiness {
		return s.redemptions.ListByBusiness(ctx, accountID)
	}
	return s.redemptions.ListByCustomer(ctx, accountID)
}

// CreateReward adds a catalog entry for the business. Catalog management
// beyond creation and stock accounting lives outside this service.
func (s *Service) CreateReward(ctx context.Context, businessID uuid.UUID, name, description, category string, pointsRequired, stock int) (*models.Reward, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	if pointsRequired <= 0 {
		return nil, errors.New("points_required must be positive")
	}
	if stock < models.UnlimitedStock {
		return nil, errors.New("stock must be >= -1")
	}
	w := &models.Reward{
		ID:             uuid.New(),
		BusinessID:     businessID,
		Name:           name,
		Description:    description,
		Category:       category,
		PointsRequired: pointsRequired,
		Stock:          stock,
		Active:         true,
	}
	if err := s.rewards.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// ListRewards returns a business's catalog. activeOnly hides disabled rewards
// from customers.
func (s *Service) ListRewards(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]*models.Reward, error) {
	return s.rewards.ListByBusiness(ctx, businessID, activeOnly)
}

func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn(ctx)
		if !repository.IsSerializationFailure(err) {
			return err
		}
		s.log.Warn("serialization failure, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
}
