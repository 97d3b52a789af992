package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind classifies a safe.
type AccountKind string

const (
	AccountKindBank   AccountKind = "bank"
	AccountKindWallet AccountKind = "wallet"
	AccountKindCash   AccountKind = "cash"
	AccountKindOther  AccountKind = "other"
)

// Valid reports whether k is one of the known safe kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountKindBank, AccountKindWallet, AccountKindCash, AccountKindOther:
		return true
	}
	return false
}

// Account is a named pool of money (a safe) with a single current balance.
// CurrentBalance is mutated only by the ledger service.
type Account struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Kind           AccountKind     `json:"kind"`
	AccountNumber  string          `json:"account_number,omitempty"`
	Active         bool            `json:"active"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	Notes          string          `json:"notes,omitempty"`
	LastUpdated    time.Time       `json:"last_updated"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// AccountSummary is the read-model exposed to reporting.
type AccountSummary struct {
	AccountID      int64           `json:"account_id"`
	Name           string          `json:"name"`
	Kind           AccountKind     `json:"kind"`
	Balance        decimal.Decimal `json:"balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}
