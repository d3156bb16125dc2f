package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthToken is the ephemeral single-use credential a customer presents (as a
// QR code) so a business can credit points. The snapshot fields are frozen at
// issuance for display only; they are never authoritative.
type AuthToken struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID uuid.UUID  `json:"customer_id"`

	CustomerName   string `json:"customer_name"`
	PointsSnapshot int    `json:"points_snapshot"`

	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedBy *uuid.UUID `json:"consumed_by,omitempty"`
}

// Expired reports whether the token is past its expiry at the given instant.
// Validity always re-checks this; it never depends on the sweep having run.
func (t *AuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
