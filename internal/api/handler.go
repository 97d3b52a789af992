// Package api exposes the ledger, transfer and debt services over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SaleemAtefMater/specter-transfer/internal/debt"
	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/ledger"
	"github.com/SaleemAtefMater/specter-transfer/internal/transfer"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safes_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safes_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	transfersIntakenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safes_transfers_intaken_total",
		Help: "Transfers registered at intake",
	})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safes_transfer_deliveries_total",
		Help: "Transfer deliveries applied, labeled partial or final",
	}, []string{"stage"})

	transfersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safes_transfers_canceled_total",
		Help: "Transfers canceled",
	})

	debtPaymentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safes_debt_payments_total",
		Help: "Debt payments recorded",
	})

	paymentReversalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "safes_debt_payment_reversals_total",
		Help: "Debt payments reversed",
	})
)

type Handler struct {
	ledger    *ledger.Service
	transfers *transfer.Service
	debts     *debt.Service
	log       zerolog.Logger
}

func NewHandler(lg *ledger.Service, tr *transfer.Service, db *debt.Service, log zerolog.Logger) *Handler {
	return &Handler{ledger: lg, transfers: tr, debts: db, log: log}
}

// Router assembles the versioned API with middleware attached.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestID, Metrics, Logging(h.log), Recovery(h.log))

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	v1.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	v1.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	v1.HandleFunc("/accounts/{id}/summary", h.GetAccountSummary).Methods("GET")
	v1.HandleFunc("/accounts/{id}/entries", h.ListEntries).Methods("GET")
	v1.HandleFunc("/accounts/{id}/adjust", h.AdjustBalance).Methods("POST")
	v1.HandleFunc("/balance/total", h.GetTotalBalance).Methods("GET")
	v1.HandleFunc("/overview", h.GetOverview).Methods("GET")

	v1.HandleFunc("/transfers", h.IntakeTransfer).Methods("POST")
	v1.HandleFunc("/transfers", h.ListTransfers).Methods("GET")
	v1.HandleFunc("/transfers/pending/count", h.PendingTransferCount).Methods("GET")
	v1.HandleFunc("/transfers/{id}", h.GetTransfer).Methods("GET")
	v1.HandleFunc("/transfers/{id}/deliver", h.DeliverTransfer).Methods("POST")
	v1.HandleFunc("/transfers/{id}/cancel", h.CancelTransfer).Methods("POST")

	v1.HandleFunc("/debts", h.CreateDebt).Methods("POST")
	v1.HandleFunc("/debts/statistics", h.GetDebtStatistics).Methods("GET")
	v1.HandleFunc("/debts/{id}", h.GetDebt).Methods("GET")
	v1.HandleFunc("/debts/{id}/payments", h.RecordDebtPayment).Methods("POST")
	v1.HandleFunc("/debts/{id}/payments", h.ListDebtPayments).Methods("GET")
	v1.HandleFunc("/debts/{id}/cancel", h.CancelDebt).Methods("POST")
	v1.HandleFunc("/payments/{id}", h.ReverseDebtPayment).Methods("DELETE")

	return r
}

// statusForError maps the domain error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var (
		nf *domain.NotFoundError
		ve *domain.ValidationError
		ib *domain.InsufficientBalanceError
		st *domain.InvalidStateTransitionError
		cc *domain.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ve), errors.As(err, &ib):
		return http.StatusUnprocessableEntity
	case errors.As(err, &st), errors.As(err, &cc):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

// respondDomainError hides internal errors behind a generic message; the
// structured reason was already logged by the service.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		respondError(w, code, "internal error")
		return
	}
	respondError(w, code, err.Error())
}

