// Package store defines the storage contract shared by the Postgres and
// in-memory backends. Every write operation in the services runs inside a
// single unit of work obtained from WithinTx; all balance mutations, ledger
// inserts and entity updates of one business operation commit together or
// not at all.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
)

// Sequence scopes for year-partitioned counters.
const (
	SeqTransaction = "transaction"
	SeqTransfer    = "transfer"
	SeqDebt        = "debt"
	SeqDebtPayment = "debt_payment"
)

// Querier is the set of row operations available both on the store itself
// (auto-commit reads) and inside a transaction.
type Querier interface {
	// Accounts
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// GetAccountForUpdate acquires a row lock on the account; valid only
	// inside a unit of work. Callers locking several accounts must do so
	// in ascending id order.
	GetAccountForUpdate(ctx context.Context, id int64) (*domain.Account, error)
	UpdateAccount(ctx context.Context, a *domain.Account) error
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	SumBalances(ctx context.Context) (decimal.Decimal, error)

	// Ledger
	InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	ListEntriesByAccount(ctx context.Context, accountID int64) ([]*domain.LedgerEntry, error)

	// NextSequence atomically increments and returns the counter for the
	// given scope and year.
	NextSequence(ctx context.Context, scope string, year int) (int64, error)

	// Transfers
	InsertTransfer(ctx context.Context, t *domain.Transfer) error
	GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error)
	GetTransferForUpdate(ctx context.Context, id int64) (*domain.Transfer, error)
	UpdateTransfer(ctx context.Context, t *domain.Transfer) error
	ListTransfers(ctx context.Context, status domain.TransferStatus) ([]*domain.Transfer, error)
	CountTransfersByStatus(ctx context.Context, statuses ...domain.TransferStatus) (int64, error)

	// Debts
	InsertDebt(ctx context.Context, d *domain.Debt) error
	GetDebt(ctx context.Context, id int64) (*domain.Debt, error)
	GetDebtForUpdate(ctx context.Context, id int64) (*domain.Debt, error)
	UpdateDebt(ctx context.Context, d *domain.Debt) error
	// DebtTotals returns the sums of total_amount and paid_amount over all
	// live debts.
	DebtTotals(ctx context.Context) (total, paid decimal.Decimal, err error)
	CountUnpaidCreditors(ctx context.Context) (int64, error)

	// Debt payments
	InsertDebtPayment(ctx context.Context, p *domain.DebtPayment) error
	GetDebtPayment(ctx context.Context, id int64) (*domain.DebtPayment, error)
	ListPaymentsByDebt(ctx context.Context, debtID int64) ([]*domain.DebtPayment, error)
	// DeleteDebtPayment soft-deletes the payment row.
	DeleteDebtPayment(ctx context.Context, id int64) error
}

// Tx is a unit of work. Returning an error from the WithinTx callback rolls
// back everything done through the Tx.
type Tx interface {
	Querier
}

// Store is the full storage contract the services depend on.
type Store interface {
	Querier
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
