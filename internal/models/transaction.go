package models

import (
	"time"

	"github.com/google/uuid"
)

// Points transaction entry_type enums.
const (
	TxEntryCredit     = "credit"
	TxEntryRedemption = "redemption"
	TxEntryReversal   = "reversal"
)

// PointsTransaction is an append-only ledger record. Never updated or
// deleted; corrections are expressed as reversal entries.
type PointsTransaction struct {
	ID            uuid.UUID  `json:"id"`
	CustomerID    uuid.UUID  `json:"customer_id"`
	BusinessID    uuid.UUID  `json:"business_id"`
	EntryType     string     `json:"entry_type"`
	AmountCents   int64      `json:"amount_cents"`
	Points        int        `json:"points"` // signed delta to the global balance
	BalanceBefore int        `json:"balance_before"`
	BalanceAfter  int        `json:"balance_after"`
	TokenID       *uuid.UUID `json:"token_id,omitempty"`
	RedemptionID  *uuid.UUID `json:"redemption_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
