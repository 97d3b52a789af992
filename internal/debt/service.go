// Package debt applies and reverses creditor repayments against the same
// ledger the transfers use. A debt's status is derived from its paid
// amount; the sum of live payments always equals that paid amount.
package debt

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/ledger"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
)

// CreateInput carries the fields of a new debt.
type CreateInput struct {
	CreditorName     string          `json:"creditor_name"`
	CreditorPhone    string          `json:"creditor_phone,omitempty"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	FundingAccountID int64           `json:"funding_account_id"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

type Service struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

func New(st store.Store, lg *ledger.Service, log zerolog.Logger) *Service {
	return &Service{store: st, ledger: lg, log: log.With().Str("component", "debt").Logger()}
}

// Create registers a debt owed to a creditor.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Debt, error) {
	if in.CreditorName == "" {
		return nil, &domain.ValidationError{Field: "creditor_name", Reason: "required"}
	}
	if in.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ValidationError{Field: "total_amount", Reason: "must be positive"}
	}

	var debt *domain.Debt
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, in.FundingAccountID); err != nil {
			return err
		}

		now := time.Now().UTC()
		seq, err := tx.NextSequence(ctx, store.SeqDebt, now.Year())
		if err != nil {
			return err
		}

		debt = &domain.Debt{
			DebtNumber:       domain.FormatSequence(domain.SeqPrefixDebt, now.Year(), seq),
			CreditorName:     in.CreditorName,
			CreditorPhone:    in.CreditorPhone,
			TotalAmount:      domain.RoundMoney(in.TotalAmount),
			PaidAmount:       decimal.Zero,
			Remaining:        domain.RoundMoney(in.TotalAmount),
			FundingAccountID: in.FundingAccountID,
			Status:           domain.DebtNotPaid,
			DueDate:          in.DueDate,
			Notes:            in.Notes,
		}
		return tx.InsertDebt(ctx, debt)
	})
	if err != nil {
		s.log.Error().Err(err).Str("creditor", in.CreditorName).
			Str("total_amount", in.TotalAmount.StringFixed(2)).Msg("debt creation failed")
		return nil, err
	}

	s.log.Info().Int64("debt_id", debt.ID).Str("debt_number", debt.DebtNumber).
		Str("total_amount", debt.TotalAmount.StringFixed(2)).Msg("debt created")
	return debt, nil
}

// RecordPayment debits the paying safe, writes the debt_payment ledger
// entry and advances the debt, all in one unit of work.
func (s *Service) RecordPayment(ctx context.Context, debtID, accountID int64, amount decimal.Decimal, date time.Time, notes string) (*domain.DebtPayment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ValidationError{Field: "payment_amount", Reason: "must be positive"}
	}
	amount = domain.RoundMoney(amount)

	var payment *domain.DebtPayment
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		debt, err := tx.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		if debt.Status == domain.DebtCanceled || debt.Status == domain.DebtPaid {
			return &domain.InvalidStateTransitionError{Entity: "debt", ID: debt.ID, Status: string(debt.Status), Operation: "paid"}
		}
		if amount.GreaterThan(debt.Remaining.Add(domain.Epsilon)) {
			return &domain.ValidationError{Field: "payment_amount", Reason: "exceeds remaining debt"}
		}

		account, err := tx.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.CurrentBalance.LessThan(amount) {
			return &domain.InsufficientBalanceError{AccountID: accountID, Balance: account.CurrentBalance, Requested: amount}
		}

		now := time.Now().UTC()
		seq, err := tx.NextSequence(ctx, store.SeqDebtPayment, now.Year())
		if err != nil {
			return err
		}

		payment = &domain.DebtPayment{
			PaymentNumber: domain.FormatSequence(domain.SeqPrefixPayment, now.Year(), seq),
			DebtID:        debtID,
			AccountID:     accountID,
			Amount:        amount,
			PaymentDate:   date,
			Notes:         notes,
		}
		if err := tx.InsertDebtPayment(ctx, payment); err != nil {
			return err
		}

		desc := fmt.Sprintf("Debt payment to %s - %s", debt.CreditorName, payment.PaymentNumber)
		if _, err := s.ledger.Post(ctx, tx, accountID, domain.EntryDebtPayment, amount, desc, domain.PaymentRef(payment.ID)); err != nil {
			return err
		}

		debt.PaidAmount = debt.PaidAmount.Add(amount)
		debt.Remaining = debt.TotalAmount.Sub(debt.PaidAmount)
		if debt.Remaining.IsNegative() {
			debt.Remaining = decimal.Zero
		}
		debt.Status = domain.DeriveDebtStatus(debt.PaidAmount, debt.TotalAmount)
		return tx.UpdateDebt(ctx, debt)
	})
	if err != nil {
		s.log.Error().Err(err).Int64("debt_id", debtID).Int64("account_id", accountID).
			Str("amount", amount.StringFixed(2)).Msg("debt payment failed")
		return nil, err
	}

	s.log.Info().Int64("debt_id", debtID).Int64("payment_id", payment.ID).
		Str("payment_number", payment.PaymentNumber).Str("amount", amount.StringFixed(2)).
		Msg("debt payment recorded")
	return payment, nil
}

// ReversePayment undoes a recorded payment: the paying safe is credited
// back with a compensating deposit entry, the debt's paid amount drops and
// the payment row is soft-deleted. The compensating entry keeps the
// reconciliation invariant intact.
func (s *Service) ReversePayment(ctx context.Context, paymentID int64) error {
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		payment, err := tx.GetDebtPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		debt, err := tx.GetDebtForUpdate(ctx, payment.DebtID)
		if err != nil {
			return err
		}

		desc := fmt.Sprintf("Reversal of debt payment %s to %s", payment.PaymentNumber, debt.CreditorName)
		if _, err := s.ledger.Post(ctx, tx, payment.AccountID, domain.EntryDeposit, payment.Amount, desc, domain.PaymentRef(payment.ID)); err != nil {
			return err
		}

		debt.PaidAmount = debt.PaidAmount.Sub(payment.Amount)
		if debt.PaidAmount.IsNegative() {
			debt.PaidAmount = decimal.Zero
		}
		debt.Remaining = debt.TotalAmount.Sub(debt.PaidAmount)
		if debt.Status != domain.DebtCanceled {
			debt.Status = domain.DeriveDebtStatus(debt.PaidAmount, debt.TotalAmount)
		}
		if err := tx.UpdateDebt(ctx, debt); err != nil {
			return err
		}

		return tx.DeleteDebtPayment(ctx, paymentID)
	})
	if err != nil {
		s.log.Error().Err(err).Int64("payment_id", paymentID).Msg("payment reversal failed")
		return err
	}

	s.log.Info().Int64("payment_id", paymentID).Msg("debt payment reversed")
	return nil
}

// CancelDebt is the manual canceled override. Fully paid debts stay paid.
func (s *Service) CancelDebt(ctx context.Context, debtID int64, reason string) (*domain.Debt, error) {
	if reason == "" {
		return nil, &domain.ValidationError{Field: "reason", Reason: "required"}
	}

	var debt *domain.Debt
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		d, err := tx.GetDebtForUpdate(ctx, debtID)
		if err != nil {
			return err
		}
		if d.Status == domain.DebtPaid || d.Status == domain.DebtCanceled {
			return &domain.InvalidStateTransitionError{Entity: "debt", ID: d.ID, Status: string(d.Status), Operation: "canceled"}
		}
		if d.Notes != "" {
			d.Notes += "\n\n"
		}
		d.Notes += "Canceled: " + reason
		d.Status = domain.DebtCanceled
		debt = d
		return tx.UpdateDebt(ctx, d)
	})
	if err != nil {
		s.log.Error().Err(err).Int64("debt_id", debtID).Msg("debt cancellation failed")
		return nil, err
	}

	s.log.Info().Int64("debt_id", debtID).Str("debt_number", debt.DebtNumber).Msg("debt canceled")
	return debt, nil
}

// Get returns one debt.
func (s *Service) Get(ctx context.Context, debtID int64) (*domain.Debt, error) {
	return s.store.GetDebt(ctx, debtID)
}

// ListPayments returns the live payments of one debt, oldest first.
func (s *Service) ListPayments(ctx context.Context, debtID int64) ([]*domain.DebtPayment, error) {
	if _, err := s.store.GetDebt(ctx, debtID); err != nil {
		return nil, err
	}
	return s.store.ListPaymentsByDebt(ctx, debtID)
}
