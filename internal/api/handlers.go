package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/debt"
	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/ledger"
	"github.com/SaleemAtefMater/specter-transfer/internal/transfer"
)

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// Accounts

type createAccountRequest struct {
	Name           string             `json:"name"`
	Kind           domain.AccountKind `json:"kind"`
	AccountNumber  string             `json:"account_number"`
	Notes          string             `json:"notes"`
	InitialBalance decimal.Decimal    `json:"initial_balance"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	account, err := h.ledger.CreateAccount(r.Context(), req.Name, req.Kind, req.AccountNumber, req.Notes, req.InitialBalance)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	account, err := h.ledger.GetAccount(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	summary, err := h.ledger.GetAccountSummary(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	entries, err := h.ledger.ListEntries(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type adjustBalanceRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Operation ledger.AdjustOp `json:"operation"`
	Reason    string          `json:"reason"`
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var req adjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	account, err := h.ledger.ManualAdjust(r.Context(), id, req.Amount, req.Operation, req.Reason)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, account)
}

func (h *Handler) GetTotalBalance(w http.ResponseWriter, r *http.Request) {
	total, err := h.ledger.GetTotalBalance(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"total_balance": total})
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.ledger.GetFinancialOverview(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// Transfers

func (h *Handler) IntakeTransfer(w http.ResponseWriter, r *http.Request) {
	var in transfer.IntakeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	t, err := h.transfers.Intake(r.Context(), in)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	transfersIntakenTotal.Inc()
	respondJSON(w, http.StatusCreated, t)
}

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	status := domain.TransferStatus(r.URL.Query().Get("status"))
	transfers, err := h.transfers.List(r.Context(), status)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transfers)
}

func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	t, err := h.transfers.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handler) PendingTransferCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.transfers.PendingCount(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"pending_count": count})
}

type deliverRequest struct {
	DeliveryAccountID int64           `json:"delivery_account_id"`
	DeliveryAmount    decimal.Decimal `json:"delivery_amount"`
	Notes             string          `json:"notes"`
}

func (h *Handler) DeliverTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	result, err := h.transfers.Deliver(r.Context(), id, req.DeliveryAccountID, req.DeliveryAmount, req.Notes)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	stage := "partial"
	if result.IsComplete {
		stage = "final"
	}
	deliveriesTotal.WithLabelValues(stage).Inc()
	respondJSON(w, http.StatusOK, result)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	t, err := h.transfers.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	transfersCanceledTotal.Inc()
	respondJSON(w, http.StatusOK, t)
}

// Debts

func (h *Handler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var in debt.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	d, err := h.debts.Create(r.Context(), in)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid debt id")
		return
	}
	d, err := h.debts.Get(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *Handler) GetDebtStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GetDebtStatistics(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type recordPaymentRequest struct {
	AccountID   int64           `json:"account_id"`
	Amount      decimal.Decimal `json:"payment_amount"`
	PaymentDate *time.Time      `json:"payment_date"`
	Notes       string          `json:"notes"`
}

func (h *Handler) RecordDebtPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid debt id")
		return
	}
	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	date := time.Now().UTC()
	if req.PaymentDate != nil {
		date = *req.PaymentDate
	}

	payment, err := h.debts.RecordPayment(r.Context(), id, req.AccountID, req.Amount, date, req.Notes)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	debtPaymentsTotal.Inc()
	respondJSON(w, http.StatusCreated, payment)
}

func (h *Handler) ListDebtPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid debt id")
		return
	}
	payments, err := h.debts.ListPayments(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payments)
}

func (h *Handler) CancelDebt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid debt id")
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	d, err := h.debts.CancelDebt(r.Context(), id, req.Reason)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *Handler) ReverseDebtPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid payment id")
		return
	}
	if err := h.debts.ReversePayment(r.Context(), id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	paymentReversalsTotal.Inc()
	respondJSON(w, http.StatusOK, map[string]string{"status": "reversed"})
}
