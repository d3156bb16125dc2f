package models

import (
	"time"

	"github.com/google/uuid"
)

// Account type enums.
const (
	AccountTypeCustomer = "customer"
	AccountTypeBusiness = "business"
)

// Account is a discriminated record: Type selects which variant fields are
// meaningful. Customer accounts carry GlobalPoints; business accounts carry
// the points formula and informational counters.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	WebhookURL   *string   `json:"webhook_url,omitempty"`

	// Customer variant. Invariant between ledger operations:
	// GlobalPoints == SUM(issuer_balances.points) for this customer.
	GlobalPoints int `json:"global_points,omitempty"`

	// Business variant: points formula floor(amount/spend_unit)*points_per_unit,
	// plus informational counters (not ledger-critical).
	SpendUnitCents    int64 `json:"spend_unit_cents,omitempty"`
	PointsPerUnit     int   `json:"points_per_unit,omitempty"`
	TotalTransactions int   `json:"total_transactions,omitempty"`
	TotalRevenueCents int64 `json:"total_revenue_cents,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCustomer reports whether the account is the customer variant.
func (a *Account) IsCustomer() bool { return a.Type == AccountTypeCustomer }

// IsBusiness reports whether the account is the business variant.
func (a *Account) IsBusiness() bool { return a.Type == AccountTypeBusiness }

// IssuerBalance is the partition of a customer's points earned from one
// business. Redemption at a business is checked against this, not the
// global total.
type IssuerBalance struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	BusinessID  uuid.UUID `json:"business_id"`
	Points      int       `json:"points"`
	LastUpdated time.Time `json:"last_updated"`
}
