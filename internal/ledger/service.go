// Package ledger owns account balances and the immutable transaction log.
// Every balance change flows through this service and is paired with
// exactly one ledger entry, so at any point
// current_balance == initial_balance + sum(credits) - sum(debits).
package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
)

// AdjustOp selects the mode of a manual balance adjustment.
type AdjustOp string

const (
	OpAdd      AdjustOp = "add"
	OpSubtract AdjustOp = "subtract"
	OpSet      AdjustOp = "set"
)

type Service struct {
	store store.Store
	log   zerolog.Logger
}

func New(st store.Store, log zerolog.Logger) *Service {
	return &Service{store: st, log: log.With().Str("component", "ledger").Logger()}
}

// AdjustBalance applies a credit or debit to the account inside the given
// unit of work. The account row is locked for the read-modify-write, so two
// operations on the same account can never both start from the same balance.
func (s *Service) AdjustBalance(ctx context.Context, tx store.Tx, accountID int64, amount decimal.Decimal, dir domain.Direction) (decimal.Decimal, error) {
	account, err := tx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	if dir == domain.DirectionCredit {
		account.CurrentBalance = account.CurrentBalance.Add(amount)
	} else {
		account.CurrentBalance = account.CurrentBalance.Sub(amount)
	}
	account.CurrentBalance = domain.RoundMoney(account.CurrentBalance)

	if err := tx.UpdateAccount(ctx, account); err != nil {
		return decimal.Zero, err
	}
	return account.CurrentBalance, nil
}

// RecordEntry writes one immutable ledger entry inside the given unit of
// work, issuing the next year-scoped transaction number atomically.
func (s *Service) RecordEntry(ctx context.Context, tx store.Tx, accountID int64, kind domain.EntryKind, amount decimal.Decimal, description string, ref domain.Reference) (*domain.LedgerEntry, error) {
	if !kind.Valid() {
		return nil, &domain.ValidationError{Field: "kind", Reason: "unknown entry kind"}
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seq, err := tx.NextSequence(ctx, store.SeqTransaction, now.Year())
	if err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		SequenceNumber: domain.FormatSequence(domain.SeqPrefixTransaction, now.Year(), seq),
		AccountID:      accountID,
		Kind:           kind,
		Amount:         domain.RoundMoney(amount),
		Description:    description,
		Reference:      ref,
		CreatedAt:      now,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Post pairs an AdjustBalance with its RecordEntry as one step. The entry
// kind decides the direction. Composite operations call this for every
// balance movement they make.
func (s *Service) Post(ctx context.Context, tx store.Tx, accountID int64, kind domain.EntryKind, amount decimal.Decimal, description string, ref domain.Reference) (*domain.LedgerEntry, error) {
	entry, err := s.RecordEntry(ctx, tx, accountID, kind, amount, description, ref)
	if err != nil {
		return nil, err
	}
	if _, err := s.AdjustBalance(ctx, tx, accountID, entry.Amount, kind.Direction()); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateAccount registers a new safe.
func (s *Service) CreateAccount(ctx context.Context, name string, kind domain.AccountKind, accountNumber, notes string, initial decimal.Decimal) (*domain.Account, error) {
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "required"}
	}
	if !kind.Valid() {
		return nil, &domain.ValidationError{Field: "kind", Reason: "must be bank, wallet, cash or other"}
	}
	if initial.IsNegative() {
		return nil, &domain.ValidationError{Field: "initial_balance", Reason: "must not be negative"}
	}

	account := &domain.Account{
		Name:           name,
		Kind:           kind,
		AccountNumber:  accountNumber,
		Active:         true,
		InitialBalance: domain.RoundMoney(initial),
		Notes:          notes,
	}
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		s.log.Error().Err(err).Str("name", name).Msg("account creation failed")
		return nil, err
	}

	s.log.Info().Int64("account_id", account.ID).Str("name", name).Str("kind", string(kind)).Msg("account created")
	return account, nil
}

// ManualAdjust is the administrative add/subtract/set on a safe. The reason
// is mandatory and every adjustment produces a ledger entry, so manual
// corrections stay reconcilable.
func (s *Service) ManualAdjust(ctx context.Context, accountID int64, amount decimal.Decimal, op AdjustOp, reason string) (*domain.Account, error) {
	if reason == "" {
		return nil, &domain.ValidationError{Field: "reason", Reason: "required"}
	}

	var account *domain.Account
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		var kind domain.EntryKind
		var delta decimal.Decimal
		switch op {
		case OpAdd:
			if amount.LessThanOrEqual(decimal.Zero) {
				return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
			}
			kind, delta = domain.EntryDeposit, amount
		case OpSubtract:
			if amount.LessThanOrEqual(decimal.Zero) {
				return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
			}
			if locked.CurrentBalance.LessThan(amount) {
				return &domain.InsufficientBalanceError{AccountID: accountID, Balance: locked.CurrentBalance, Requested: amount}
			}
			kind, delta = domain.EntryWithdrawal, amount
		case OpSet:
			if amount.IsNegative() {
				return &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
			}
			delta = domain.RoundMoney(amount).Sub(locked.CurrentBalance)
			if delta.IsZero() {
				account = locked
				return nil
			}
			if delta.IsPositive() {
				kind = domain.EntryDeposit
			} else {
				kind, delta = domain.EntryWithdrawal, delta.Neg()
			}
		default:
			return &domain.ValidationError{Field: "operation", Reason: "must be add, subtract or set"}
		}

		if _, err := s.Post(ctx, tx, accountID, kind, delta, "Manual adjustment: "+reason, domain.ManualRef()); err != nil {
			return err
		}

		account, err = tx.GetAccount(ctx, accountID)
		return err
	})
	if err != nil {
		s.log.Error().Err(err).Int64("account_id", accountID).Str("operation", string(op)).
			Str("amount", amount.StringFixed(2)).Msg("manual adjustment failed")
		return nil, err
	}

	s.log.Info().Int64("account_id", accountID).Str("operation", string(op)).
		Str("amount", amount.StringFixed(2)).Str("balance", account.CurrentBalance.StringFixed(2)).
		Msg("manual adjustment applied")
	return account, nil
}

// GetAccount returns one safe.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// ListAccounts returns all safes.
func (s *Service) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return s.store.ListAccounts(ctx)
}

// GetBalance returns the current balance of one safe.
func (s *Service) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.CurrentBalance, nil
}

// HasSufficientBalance reports whether the safe can cover the amount.
func (s *Service) HasSufficientBalance(ctx context.Context, accountID int64, amount decimal.Decimal) (bool, error) {
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

// GetTotalBalance sums the balances of all active safes.
func (s *Service) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.store.SumBalances(ctx)
}

// GetAccountSummary is the per-safe read-model for dashboards.
func (s *Service) GetAccountSummary(ctx context.Context, accountID int64) (*domain.AccountSummary, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.AccountSummary{
		AccountID:      account.ID,
		Name:           account.Name,
		Kind:           account.Kind,
		Balance:        account.CurrentBalance,
		InitialBalance: account.InitialBalance,
	}, nil
}

// ListEntries returns the transaction history of one safe, oldest first.
func (s *Service) ListEntries(ctx context.Context, accountID int64) ([]*domain.LedgerEntry, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListEntriesByAccount(ctx, accountID)
}

// GetDebtStatistics aggregates debt totals for the dashboards.
func (s *Service) GetDebtStatistics(ctx context.Context) (*domain.DebtStatistics, error) {
	total, paid, err := s.store.DebtTotals(ctx)
	if err != nil {
		return nil, err
	}
	creditors, err := s.store.CountUnpaidCreditors(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.DebtStatistics{
		Total:           total,
		Paid:            paid,
		Unpaid:          total.Sub(paid),
		UnpaidCreditors: creditors,
	}, nil
}

// GetFinancialOverview is the dashboard aggregate: safe balances against
// outstanding debt.
func (s *Service) GetFinancialOverview(ctx context.Context) (*domain.FinancialOverview, error) {
	totalBalance, err := s.GetTotalBalance(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.GetDebtStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.FinancialOverview{
		TotalBalance: totalBalance,
		Debts:        *stats,
		NetPosition:  totalBalance.Sub(stats.Unpaid),
	}, nil
}
