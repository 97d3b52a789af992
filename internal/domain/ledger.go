package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction says which way an amount moves on an account.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// EntryKind classifies a ledger entry. Amounts are always positive;
// the kind encodes the direction.
type EntryKind string

const (
	EntryDeposit     EntryKind = "deposit"
	EntryWithdrawal  EntryKind = "withdrawal"
	EntryTransferIn  EntryKind = "transfer_in"
	EntryTransferOut EntryKind = "transfer_out"
	EntryDebtPayment EntryKind = "debt_payment"
)

// Direction maps an entry kind to the balance movement it records.
func (k EntryKind) Direction() Direction {
	switch k {
	case EntryDeposit, EntryTransferIn:
		return DirectionCredit
	default:
		return DirectionDebit
	}
}

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryWithdrawal, EntryTransferIn, EntryTransferOut, EntryDebtPayment:
		return true
	}
	return false
}

// RefKind tags the entity a ledger entry points back to.
type RefKind string

const (
	RefTransfer    RefKind = "transfer"
	RefDebtPayment RefKind = "debt_payment"
	RefManual      RefKind = "manual"
)

// Reference is the tagged link from a ledger entry to the operation that
// produced it. Manual entries carry no entity id.
type Reference struct {
	Kind RefKind `json:"kind"`
	ID   int64   `json:"id,omitempty"`
}

func ManualRef() Reference           { return Reference{Kind: RefManual} }
func TransferRef(id int64) Reference { return Reference{Kind: RefTransfer, ID: id} }
func PaymentRef(id int64) Reference  { return Reference{Kind: RefDebtPayment, ID: id} }

// Validate rejects references with an unknown kind or a missing entity id.
func (r Reference) Validate() error {
	switch r.Kind {
	case RefManual:
		return nil
	case RefTransfer, RefDebtPayment:
		if r.ID <= 0 {
			return &ValidationError{Field: "reference", Reason: "entity id required"}
		}
		return nil
	default:
		return &ValidationError{Field: "reference", Reason: "unknown kind"}
	}
}

// LedgerEntry is the immutable record of one balance-affecting event.
type LedgerEntry struct {
	ID             int64           `json:"id"`
	SequenceNumber string          `json:"sequence_number"`
	AccountID      int64           `json:"account_id"`
	Kind           EntryKind       `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Reference      Reference       `json:"reference"`
	CreatedAt      time.Time       `json:"created_at"`
}
