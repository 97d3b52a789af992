// Package transfer drives the delivery lifecycle of customer transfers:
// intake holds the funds on the origin safe, deliveries pay the receiver
// out of a delivery safe (possibly in parts), cancellation reverses the
// hold. All balance movements go through the ledger service inside one
// unit of work per operation.
package transfer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/ledger"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
)

// IntakeInput carries the fields of a new transfer.
type IntakeInput struct {
	OriginAccountID   int64                 `json:"origin_account_id"`
	CustomerName      string                `json:"customer_name"`
	Phone             string                `json:"phone,omitempty"`
	SentAmount        decimal.Decimal       `json:"sent_amount"`
	TransferCost      decimal.Decimal       `json:"transfer_cost"`
	CustomerPrice     decimal.Decimal       `json:"customer_price"`
	ReceiverNetAmount decimal.Decimal       `json:"receiver_net_amount"`
	Status            domain.TransferStatus `json:"status,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	PhotoRef          string                `json:"photo_ref,omitempty"`
}

// DeliveryResult reports the outcome of one successful delivery. Profit is
// meaningful only when the delivery completed the transfer.
type DeliveryResult struct {
	Transfer       *domain.Transfer `json:"transfer"`
	Message        string           `json:"message"`
	IsComplete     bool             `json:"is_complete"`
	DeliveryAmount decimal.Decimal  `json:"delivery_amount"`
	TotalDelivered decimal.Decimal  `json:"total_delivered"`
	Remaining      decimal.Decimal  `json:"remaining_amount"`
	Profit         decimal.Decimal  `json:"profit"`
}

type Service struct {
	store  store.Store
	ledger *ledger.Service
	log    zerolog.Logger
}

func New(st store.Store, lg *ledger.Service, log zerolog.Logger) *Service {
	return &Service{store: st, ledger: lg, log: log.With().Str("component", "transfer").Logger()}
}

func (in IntakeInput) validate() error {
	if in.CustomerName == "" {
		return &domain.ValidationError{Field: "customer_name", Reason: "required"}
	}
	if in.SentAmount.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Field: "sent_amount", Reason: "must be positive"}
	}
	if in.TransferCost.IsNegative() {
		return &domain.ValidationError{Field: "transfer_cost", Reason: "must not be negative"}
	}
	if in.ReceiverNetAmount.LessThanOrEqual(decimal.Zero) {
		return &domain.ValidationError{Field: "receiver_net_amount", Reason: "must be positive"}
	}
	switch in.Status {
	case "", domain.TransferPendingVerification, domain.TransferChecked:
		return nil
	default:
		return &domain.ValidationError{Field: "status", Reason: "intake status must be pending_verification or checked"}
	}
}

// Intake registers a transfer and credits the held amount
// (sent - cost, when positive) to the origin safe exactly once.
func (s *Service) Intake(ctx context.Context, in IntakeInput) (*domain.Transfer, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = domain.TransferPendingVerification
	}

	var transfer *domain.Transfer
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccountForUpdate(ctx, in.OriginAccountID); err != nil {
			return err
		}

		now := time.Now().UTC()
		seq, err := tx.NextSequence(ctx, store.SeqTransfer, now.Year())
		if err != nil {
			return err
		}

		transfer = &domain.Transfer{
			TransferNumber:    domain.FormatSequence(domain.SeqPrefixTransfer, now.Year(), seq),
			OriginAccountID:   in.OriginAccountID,
			CustomerName:      in.CustomerName,
			Phone:             in.Phone,
			SentAmount:        domain.RoundMoney(in.SentAmount),
			TransferCost:      domain.RoundMoney(in.TransferCost),
			CustomerPrice:     domain.RoundMoney(in.CustomerPrice),
			ReceiverNetAmount: domain.RoundMoney(in.ReceiverNetAmount),
			Status:            status,
			TotalDelivered:    decimal.Zero,
			Remaining:         domain.RoundMoney(in.ReceiverNetAmount),
			Notes:             in.Notes,
			PhotoRef:          in.PhotoRef,
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			return err
		}

		held := transfer.HeldAmount()
		if held.IsPositive() {
			desc := fmt.Sprintf("Transfer received - %s from %s", transfer.TransferNumber, transfer.CustomerName)
			if _, err := s.ledger.Post(ctx, tx, in.OriginAccountID, domain.EntryTransferIn, held, desc, domain.TransferRef(transfer.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("origin_account_id", in.OriginAccountID).
			Str("sent_amount", in.SentAmount.StringFixed(2)).Msg("transfer intake failed")
		return nil, err
	}

	s.log.Info().Int64("transfer_id", transfer.ID).Str("transfer_number", transfer.TransferNumber).
		Str("held_amount", transfer.HeldAmount().StringFixed(2)).Msg("transfer intaken")
	return transfer, nil
}

// Deliver pays deliveryAmount to the receiver from the delivery safe. The
// first delivery also releases the amount held on the origin safe since
// intake. Any precondition failure returns before a single balance or
// ledger write; a mid-sequence error rolls the whole unit of work back.
func (s *Service) Deliver(ctx context.Context, transferID, deliveryAccountID int64, deliveryAmount decimal.Decimal, notes string) (*DeliveryResult, error) {
	var result *DeliveryResult
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}

		if !t.Status.Deliverable() {
			return &domain.InvalidStateTransitionError{Entity: "transfer", ID: t.ID, Status: string(t.Status), Operation: "delivered"}
		}
		if deliveryAmount.LessThanOrEqual(decimal.Zero) {
			return &domain.ValidationError{Field: "delivery_amount", Reason: "must be positive"}
		}

		deliveryAmount = domain.RoundMoney(deliveryAmount)
		newTotal := t.TotalDelivered.Add(deliveryAmount)
		if newTotal.GreaterThan(t.ReceiverNetAmount.Add(domain.Epsilon)) {
			return &domain.ValidationError{
				Field:  "delivery_amount",
				Reason: fmt.Sprintf("cannot deliver %s, only %s remaining", deliveryAmount.StringFixed(2), t.Remaining.StringFixed(2)),
			}
		}

		accounts, err := lockAccounts(ctx, tx, t.OriginAccountID, deliveryAccountID)
		if err != nil {
			return err
		}
		deliveryAccount := accounts[deliveryAccountID]
		if deliveryAccount.CurrentBalance.LessThan(deliveryAmount) {
			return &domain.InsufficientBalanceError{
				AccountID: deliveryAccountID,
				Balance:   deliveryAccount.CurrentBalance,
				Requested: deliveryAmount,
			}
		}

		held := t.HeldAmount()
		firstDelivery := t.TotalDelivered.IsZero()
		if firstDelivery && held.IsPositive() {
			desc := fmt.Sprintf("Transfer delivery started - released hold for %s", t.TransferNumber)
			if _, err := s.ledger.Post(ctx, tx, t.OriginAccountID, domain.EntryTransferOut, held, desc, domain.TransferRef(t.ID)); err != nil {
				return err
			}
		}

		remaining := t.ReceiverNetAmount.Sub(newTotal)
		complete := remaining.LessThanOrEqual(domain.Epsilon)
		stage := "Partial"
		if complete {
			stage = "Final"
		}
		desc := fmt.Sprintf("Delivery payment for %s to %s (%s payment)", t.TransferNumber, t.CustomerName, stage)
		if _, err := s.ledger.Post(ctx, tx, deliveryAccountID, domain.EntryTransferOut, deliveryAmount, desc, domain.TransferRef(t.ID)); err != nil {
			return err
		}

		now := time.Now().UTC()
		t.DeliveryAccountID = &deliveryAccountID
		t.DeliveryAmount = deliveryAmount
		t.TotalDelivered = newTotal
		if remaining.IsNegative() {
			t.Remaining = decimal.Zero
		} else {
			t.Remaining = remaining
		}
		if complete {
			t.Status = domain.TransferDelivered
			t.DeliveredAt = &now
		} else {
			t.Status = domain.TransferPartiallyDelivered
		}

		line := fmt.Sprintf("%s - %s via %s", now.Format("2006-01-02 15:04:05"), deliveryAmount.StringFixed(2), deliveryAccount.Name)
		if notes != "" {
			line += ": " + notes
		}
		if t.DeliveryNotes != "" {
			t.DeliveryNotes += "\n"
		}
		t.DeliveryNotes += line

		if err := tx.UpdateTransfer(ctx, t); err != nil {
			return err
		}

		message := fmt.Sprintf("Partial delivery completed, %s remaining", t.Remaining.StringFixed(2))
		if complete {
			message = fmt.Sprintf("Transfer fully delivered, profit %s", t.Profit().StringFixed(2))
		}
		result = &DeliveryResult{
			Transfer:       t,
			Message:        message,
			IsComplete:     complete,
			DeliveryAmount: deliveryAmount,
			TotalDelivered: newTotal,
			Remaining:      t.Remaining,
			Profit:         t.Profit(),
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("transfer_id", transferID).Int64("delivery_account_id", deliveryAccountID).
			Str("delivery_amount", deliveryAmount.StringFixed(2)).Msg("transfer delivery failed")
		return nil, err
	}

	s.log.Info().Int64("transfer_id", transferID).Str("status", string(result.Transfer.Status)).
		Str("delivery_amount", result.DeliveryAmount.StringFixed(2)).
		Str("remaining", result.Remaining.StringFixed(2)).Msg("transfer delivery applied")
	return result, nil
}

// Cancel aborts a non-terminal transfer. The intake credit on the origin
// safe is reversed only while it is still held; once the first delivery
// released it there is nothing to reverse, and amounts already paid out to
// the receiver are not clawed back.
func (s *Service) Cancel(ctx context.Context, transferID int64, reason string) (*domain.Transfer, error) {
	if reason == "" {
		return nil, &domain.ValidationError{Field: "reason", Reason: "required"}
	}

	var transfer *domain.Transfer
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		t, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return &domain.InvalidStateTransitionError{Entity: "transfer", ID: t.ID, Status: string(t.Status), Operation: "canceled"}
		}

		held := t.HeldAmount()
		if t.TotalDelivered.IsZero() && held.IsPositive() {
			desc := fmt.Sprintf("Transfer canceled - %s: %s", t.TransferNumber, reason)
			if _, err := s.ledger.Post(ctx, tx, t.OriginAccountID, domain.EntryTransferOut, held, desc, domain.TransferRef(t.ID)); err != nil {
				return err
			}
		}

		if t.Notes != "" {
			t.Notes += "\n\n"
		}
		t.Notes += "Canceled: " + reason
		t.Status = domain.TransferCanceled
		if err := tx.UpdateTransfer(ctx, t); err != nil {
			return err
		}
		transfer = t
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("transfer_id", transferID).Msg("transfer cancellation failed")
		return nil, err
	}

	s.log.Info().Int64("transfer_id", transferID).Str("transfer_number", transfer.TransferNumber).
		Msg("transfer canceled")
	return transfer, nil
}

// Get returns one transfer.
func (s *Service) Get(ctx context.Context, transferID int64) (*domain.Transfer, error) {
	return s.store.GetTransfer(ctx, transferID)
}

// List returns transfers, optionally filtered by status.
func (s *Service) List(ctx context.Context, status domain.TransferStatus) ([]*domain.Transfer, error) {
	return s.store.ListTransfers(ctx, status)
}

// PendingCount counts transfers still awaiting their first delivery.
func (s *Service) PendingCount(ctx context.Context) (int64, error) {
	return s.store.CountTransfersByStatus(ctx, domain.TransferPendingVerification, domain.TransferChecked)
}

// lockAccounts acquires row locks in ascending id order so two operations
// touching the same pair of safes can never deadlock.
func lockAccounts(ctx context.Context, tx store.Tx, ids ...int64) (map[int64]*domain.Account, error) {
	seen := make(map[int64]struct{}, len(ids))
	order := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	accounts := make(map[int64]*domain.Account, len(order))
	for _, id := range order {
		a, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts[id] = a
	}
	return accounts, nil
}
