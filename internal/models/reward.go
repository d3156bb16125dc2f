package models

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedStock marks a reward with no inventory limit.
const UnlimitedStock = -1

type Reward struct {
	ID               uuid.UUID `json:"id"`
	BusinessID       uuid.UUID `json:"business_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	PointsRequired   int       `json:"points_required"`
	Stock            int       `json:"stock"` // -1 means unlimited
	Active           bool      `json:"active"`
	RedemptionsCount int       `json:"redemptions_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Unlimited reports whether the reward has no stock limit.
func (r *Reward) Unlimited() bool { return r.Stock == UnlimitedStock }

// InStock reports whether at least one unit can be reserved.
func (r *Reward) InStock() bool { return r.Unlimited() || r.Stock > 0 }

// Snapshot returns the frozen display fields for a redemption record.
func (r *Reward) Snapshot() RewardSnapshot {
	return RewardSnapshot{Name: r.Name, Description: r.Description, Category: r.Category}
}
