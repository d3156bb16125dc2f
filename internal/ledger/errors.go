package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned when a credit's monetary amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrBusinessNotFound is returned when the crediting business does not exist.
	ErrBusinessNotFound = errors.New("business not found")
	// ErrCustomerNotFound is returned when the customer account does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrInsufficientGlobalBalance marks a debit exceeding the customer's total points.
	ErrInsufficientGlobalBalance = errors.New("insufficient global balance")
	// ErrInsufficientIssuerBalance marks a debit exceeding the points earned
	// from the specific business, even when the global total would cover it.
	ErrInsufficientIssuerBalance = errors.New("insufficient balance with this business")
	// ErrConcurrentModification is surfaced after bounded retries of a
	// serialization failure.
	ErrConcurrentModification = errors.New("concurrent modification, retry")
)

// Balance scopes for InsufficientBalanceError.
const (
	ScopeGlobal = "global"
	ScopeIssuer = "issuer"
)

// InsufficientBalanceError carries the shortfall so callers can act on it.
// errors.Is matches the scope's sentinel.
type InsufficientBalanceError struct {
	Scope     string
	Required  int
	Available int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %d points, have %d", e.Scope, e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	if e.Scope == ScopeIssuer {
		return ErrInsufficientIssuerBalance
	}
	return ErrInsufficientGlobalBalance
}
