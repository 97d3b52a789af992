package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NotFoundError reports an unknown account, transfer, debt or payment.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ValidationError reports malformed input: non-positive amounts,
// over-delivery, missing required fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError reports an account that cannot cover a debit.
type InsufficientBalanceError struct {
	AccountID int64
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %d has insufficient balance: current %s, required %s",
		e.AccountID, e.Balance.StringFixed(2), e.Requested.StringFixed(2))
}

// InvalidStateTransitionError reports an operation not allowed in the
// entity's current status.
type InvalidStateTransitionError struct {
	Entity    string
	ID        int64
	Status    string
	Operation string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %d cannot be %s in status %q", e.Entity, e.ID, e.Operation, e.Status)
}

// ConcurrencyConflictError reports a lost update detected by the store.
type ConcurrencyConflictError struct {
	Entity string
	ID     int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %d", e.Entity, e.ID)
}
