package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus tracks the delivery lifecycle of a customer transfer.
type TransferStatus string

const (
	TransferPendingVerification TransferStatus = "pending_verification"
	TransferChecked             TransferStatus = "checked"
	TransferPartiallyDelivered  TransferStatus = "partially_delivered"
	TransferDelivered           TransferStatus = "delivered"
	TransferCanceled            TransferStatus = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s TransferStatus) Terminal() bool {
	return s == TransferDelivered || s == TransferCanceled
}

// Deliverable reports whether a delivery may be applied in this status.
func (s TransferStatus) Deliverable() bool {
	switch s {
	case TransferPendingVerification, TransferChecked, TransferPartiallyDelivered:
		return true
	}
	return false
}

// Transfer is a customer money transfer moving funds through the safes.
// It is mutated only through the transfer service's Deliver and Cancel.
type Transfer struct {
	ID                int64           `json:"id"`
	TransferNumber    string          `json:"transfer_number"`
	OriginAccountID   int64           `json:"origin_account_id"`
	CustomerName      string          `json:"customer_name"`
	Phone             string          `json:"phone,omitempty"`
	SentAmount        decimal.Decimal `json:"sent_amount"`
	TransferCost      decimal.Decimal `json:"transfer_cost"`
	CustomerPrice     decimal.Decimal `json:"customer_price"`
	ReceiverNetAmount decimal.Decimal `json:"receiver_net_amount"`
	Status            TransferStatus  `json:"status"`
	DeliveryAccountID *int64          `json:"delivery_account_id,omitempty"`
	DeliveryAmount    decimal.Decimal `json:"delivery_amount"`
	TotalDelivered    decimal.Decimal `json:"total_delivered_amount"`
	Remaining         decimal.Decimal `json:"remaining_amount"`
	DeliveryNotes     string          `json:"delivery_notes,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	PhotoRef          string          `json:"photo_ref,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"-"`
}

// HeldAmount is the portion credited to the origin safe while the
// transfer awaits delivery.
func (t *Transfer) HeldAmount() decimal.Decimal {
	return t.SentAmount.Sub(t.TransferCost)
}

// Profit is meaningful only once the transfer is fully delivered.
func (t *Transfer) Profit() decimal.Decimal {
	if t.Status != TransferDelivered {
		return decimal.Zero
	}
	return t.HeldAmount().Sub(t.TotalDelivered)
}
