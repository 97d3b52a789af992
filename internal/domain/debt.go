package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DebtStatus tracks repayment progress. Except for the manual canceled
// override it is a pure function of paid vs total, see DeriveDebtStatus.
type DebtStatus string

const (
	DebtNotPaid       DebtStatus = "not_paid"
	DebtPartiallyPaid DebtStatus = "partially_paid"
	DebtPaid          DebtStatus = "paid"
	DebtCanceled      DebtStatus = "canceled"
)

// DeriveDebtStatus computes the status a debt must carry for the given
// paid and total amounts.
func DeriveDebtStatus(paid, total decimal.Decimal) DebtStatus {
	switch {
	case paid.IsZero() || paid.IsNegative():
		return DebtNotPaid
	case paid.LessThan(total):
		return DebtPartiallyPaid
	default:
		return DebtPaid
	}
}

// Debt is money owed to a creditor, repaid from a funding safe.
type Debt struct {
	ID               int64           `json:"id"`
	DebtNumber       string          `json:"debt_number"`
	CreditorName     string          `json:"creditor_name"`
	CreditorPhone    string          `json:"creditor_phone,omitempty"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	Remaining        decimal.Decimal `json:"remaining_amount"`
	FundingAccountID int64           `json:"funding_account_id"`
	Status           DebtStatus      `json:"status"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"-"`
}

// DebtPayment is one repayment applied to a debt from a safe.
// Rows are append-only but may be reversed, which soft-deletes them.
type DebtPayment struct {
	ID            int64           `json:"id"`
	PaymentNumber string          `json:"payment_number"`
	DebtID        int64           `json:"debt_id"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"payment_amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DeletedAt     *time.Time      `json:"-"`
}

// DebtStatistics is the aggregate exposed to dashboards.
type DebtStatistics struct {
	Total           decimal.Decimal `json:"total"`
	Paid            decimal.Decimal `json:"paid"`
	Unpaid          decimal.Decimal `json:"unpaid"`
	UnpaidCreditors int64           `json:"unpaid_creditor_count"`
}

// FinancialOverview is the dashboard read-model: safe balances against
// outstanding debt.
type FinancialOverview struct {
	TotalBalance decimal.Decimal `json:"total_balance"`
	Debts        DebtStatistics  `json:"debts"`
	NetPosition  decimal.Decimal `json:"net_position"`
}
