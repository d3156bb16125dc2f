package models

import (
	"time"

	"github.com/google/uuid"
)

// Redemption status enums. Delivered and cancelled are terminal.
const (
	RedemptionPending   = "pending"
	RedemptionDelivered = "delivered"
	RedemptionCancelled = "cancelled"
)

// RewardSnapshot freezes the reward's display fields at redemption time so
// later catalog edits do not retroactively alter history.
type RewardSnapshot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type Redemption struct {
	ID            uuid.UUID      `json:"id"`
	CustomerID    uuid.UUID      `json:"customer_id"`
	BusinessID    uuid.UUID      `json:"business_id"`
	RewardID      uuid.UUID      `json:"reward_id"`
	PointsSpent   int            `json:"points_spent"`
	BalanceBefore int            `json:"balance_before"`
	BalanceAfter  int            `json:"balance_after"`
	Code          string         `json:"code"`
	Status        string         `json:"status"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	Reward        RewardSnapshot `json:"reward"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Terminal reports whether the redemption has reached a final state.
func (r *Redemption) Terminal() bool {
	return r.Status == RedemptionDelivered || r.Status == RedemptionCancelled
}
