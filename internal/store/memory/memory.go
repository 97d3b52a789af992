// Package memory is an in-memory implementation of the store contract.
// It backs the test suite and local development; data is lost on restart.
//
// A unit of work executes against a deep copy of the state under the store
// mutex and the copy replaces the live state only when the callback
// succeeds, so a failed operation leaves nothing behind and concurrent
// operations are fully serialized.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
)

type state struct {
	accounts  map[int64]*domain.Account
	entries   []*domain.LedgerEntry
	transfers map[int64]*domain.Transfer
	debts     map[int64]*domain.Debt
	payments  map[int64]*domain.DebtPayment
	sequences map[string]int64
	lastID    map[string]int64
}

func newState() *state {
	return &state{
		accounts:  make(map[int64]*domain.Account),
		transfers: make(map[int64]*domain.Transfer),
		debts:     make(map[int64]*domain.Debt),
		payments:  make(map[int64]*domain.DebtPayment),
		sequences: make(map[string]int64),
		lastID:    make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.accounts {
		cp := *a
		c.accounts[id] = &cp
	}
	c.entries = make([]*domain.LedgerEntry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		c.entries[i] = &cp
	}
	for id, t := range s.transfers {
		cp := *t
		c.transfers[id] = &cp
	}
	for id, d := range s.debts {
		cp := *d
		c.debts[id] = &cp
	}
	for id, p := range s.payments {
		cp := *p
		c.payments[id] = &cp
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.lastID {
		c.lastID[k] = v
	}
	return c
}

func (s *state) nextID(table string) int64 {
	s.lastID[table]++
	return s.lastID[table]
}

// Store implements store.Store entirely in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) Close() {}

// WithinTx serializes the unit of work and commits the cloned state only
// if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&view{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Reads outside a unit of work go through a short-lived view of the live
// state under the same mutex.
func (s *Store) read(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{state: s.state})
}

// view implements the row operations over one state snapshot.
type view struct {
	state *state
}

// Accounts

func (v *view) CreateAccount(ctx context.Context, a *domain.Account) error {
	now := time.Now().UTC()
	a.ID = v.state.nextID("accounts")
	a.CurrentBalance = a.InitialBalance
	a.LastUpdated = now
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	v.state.accounts[a.ID] = &cp
	return nil
}

func (v *view) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	a, ok := v.state.accounts[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "account", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (v *view) GetAccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	// The store mutex already serializes units of work.
	return v.GetAccount(ctx, id)
}

func (v *view) UpdateAccount(ctx context.Context, a *domain.Account) error {
	if _, ok := v.state.accounts[a.ID]; !ok {
		return &domain.NotFoundError{Entity: "account", ID: a.ID}
	}
	now := time.Now().UTC()
	a.LastUpdated = now
	a.UpdatedAt = now
	cp := *a
	v.state.accounts[a.ID] = &cp
	return nil
}

func (v *view) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	accounts := make([]*domain.Account, 0, len(v.state.accounts))
	for _, a := range v.state.accounts {
		cp := *a
		accounts = append(accounts, &cp)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (v *view) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range v.state.accounts {
		if a.Active {
			total = total.Add(a.CurrentBalance)
		}
	}
	return total, nil
}

// Ledger entries

func (v *view) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	e.ID = v.state.nextID("ledger_entries")
	cp := *e
	v.state.entries = append(v.state.entries, &cp)
	return nil
}

func (v *view) ListEntriesByAccount(ctx context.Context, accountID int64) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	for _, e := range v.state.entries {
		if e.AccountID == accountID {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	return entries, nil
}

// Sequences

func (v *view) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", scope, year)
	v.state.sequences[key]++
	return v.state.sequences[key], nil
}

// Transfers

func (v *view) InsertTransfer(ctx context.Context, t *domain.Transfer) error {
	now := time.Now().UTC()
	t.ID = v.state.nextID("transfers")
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	v.state.transfers[t.ID] = &cp
	return nil
}

func (v *view) GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error) {
	t, ok := v.state.transfers[id]
	if !ok || t.DeletedAt != nil {
		return nil, &domain.NotFoundError{Entity: "transfer", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (v *view) GetTransferForUpdate(ctx context.Context, id int64) (*domain.Transfer, error) {
	return v.GetTransfer(ctx, id)
}

func (v *view) UpdateTransfer(ctx context.Context, t *domain.Transfer) error {
	if _, ok := v.state.transfers[t.ID]; !ok {
		return &domain.NotFoundError{Entity: "transfer", ID: t.ID}
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	v.state.transfers[t.ID] = &cp
	return nil
}

func (v *view) ListTransfers(ctx context.Context, status domain.TransferStatus) ([]*domain.Transfer, error) {
	var transfers []*domain.Transfer
	for _, t := range v.state.transfers {
		if t.DeletedAt != nil {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		transfers = append(transfers, &cp)
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].ID > transfers[j].ID })
	return transfers, nil
}

func (v *view) CountTransfersByStatus(ctx context.Context, statuses ...domain.TransferStatus) (int64, error) {
	var count int64
	for _, t := range v.state.transfers {
		if t.DeletedAt != nil {
			continue
		}
		for _, s := range statuses {
			if t.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

// Debts

func (v *view) InsertDebt(ctx context.Context, d *domain.Debt) error {
	now := time.Now().UTC()
	d.ID = v.state.nextID("debts")
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	v.state.debts[d.ID] = &cp
	return nil
}

func (v *view) GetDebt(ctx context.Context, id int64) (*domain.Debt, error) {
	d, ok := v.state.debts[id]
	if !ok || d.DeletedAt != nil {
		return nil, &domain.NotFoundError{Entity: "debt", ID: id}
	}
	cp := *d
	return &cp, nil
}

func (v *view) GetDebtForUpdate(ctx context.Context, id int64) (*domain.Debt, error) {
	return v.GetDebt(ctx, id)
}

func (v *view) UpdateDebt(ctx context.Context, d *domain.Debt) error {
	if _, ok := v.state.debts[d.ID]; !ok {
		return &domain.NotFoundError{Entity: "debt", ID: d.ID}
	}
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	v.state.debts[d.ID] = &cp
	return nil
}

func (v *view) DebtTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	total, paid := decimal.Zero, decimal.Zero
	for _, d := range v.state.debts {
		if d.DeletedAt != nil {
			continue
		}
		total = total.Add(d.TotalAmount)
		paid = paid.Add(d.PaidAmount)
	}
	return total, paid, nil
}

func (v *view) CountUnpaidCreditors(ctx context.Context) (int64, error) {
	creditors := make(map[string]struct{})
	for _, d := range v.state.debts {
		if d.DeletedAt != nil || d.Status == domain.DebtPaid || d.Status == domain.DebtCanceled {
			continue
		}
		creditors[d.CreditorName] = struct{}{}
	}
	return int64(len(creditors)), nil
}

// Debt payments

func (v *view) InsertDebtPayment(ctx context.Context, p *domain.DebtPayment) error {
	p.ID = v.state.nextID("debt_payments")
	p.CreatedAt = time.Now().UTC()
	cp := *p
	v.state.payments[p.ID] = &cp
	return nil
}

func (v *view) GetDebtPayment(ctx context.Context, id int64) (*domain.DebtPayment, error) {
	p, ok := v.state.payments[id]
	if !ok || p.DeletedAt != nil {
		return nil, &domain.NotFoundError{Entity: "debt_payment", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (v *view) ListPaymentsByDebt(ctx context.Context, debtID int64) ([]*domain.DebtPayment, error) {
	var payments []*domain.DebtPayment
	for _, p := range v.state.payments {
		if p.DeletedAt != nil || p.DebtID != debtID {
			continue
		}
		cp := *p
		payments = append(payments, &cp)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	return payments, nil
}

func (v *view) DeleteDebtPayment(ctx context.Context, id int64) error {
	p, ok := v.state.payments[id]
	if !ok || p.DeletedAt != nil {
		return &domain.NotFoundError{Entity: "debt_payment", ID: id}
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	return nil
}

// Store-level reads delegate to a view over the live state.

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	return s.read(func(v *view) error { return v.CreateAccount(ctx, a) })
}

func (s *Store) GetAccount(ctx context.Context, id int64) (out *domain.Account, err error) {
	err = s.read(func(v *view) error { out, err = v.GetAccount(ctx, id); return err })
	return
}

func (s *Store) GetAccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *Store) UpdateAccount(ctx context.Context, a *domain.Account) error {
	return s.read(func(v *view) error { return v.UpdateAccount(ctx, a) })
}

func (s *Store) ListAccounts(ctx context.Context) (out []*domain.Account, err error) {
	err = s.read(func(v *view) error { out, err = v.ListAccounts(ctx); return err })
	return
}

func (s *Store) SumBalances(ctx context.Context) (out decimal.Decimal, err error) {
	err = s.read(func(v *view) error { out, err = v.SumBalances(ctx); return err })
	return
}

func (s *Store) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	return s.read(func(v *view) error { return v.InsertLedgerEntry(ctx, e) })
}

func (s *Store) ListEntriesByAccount(ctx context.Context, accountID int64) (out []*domain.LedgerEntry, err error) {
	err = s.read(func(v *view) error { out, err = v.ListEntriesByAccount(ctx, accountID); return err })
	return
}

func (s *Store) NextSequence(ctx context.Context, scope string, year int) (out int64, err error) {
	err = s.read(func(v *view) error { out, err = v.NextSequence(ctx, scope, year); return err })
	return
}

func (s *Store) InsertTransfer(ctx context.Context, t *domain.Transfer) error {
	return s.read(func(v *view) error { return v.InsertTransfer(ctx, t) })
}

func (s *Store) GetTransfer(ctx context.Context, id int64) (out *domain.Transfer, err error) {
	err = s.read(func(v *view) error { out, err = v.GetTransfer(ctx, id); return err })
	return
}

func (s *Store) GetTransferForUpdate(ctx context.Context, id int64) (*domain.Transfer, error) {
	return s.GetTransfer(ctx, id)
}

func (s *Store) UpdateTransfer(ctx context.Context, t *domain.Transfer) error {
	return s.read(func(v *view) error { return v.UpdateTransfer(ctx, t) })
}

func (s *Store) ListTransfers(ctx context.Context, status domain.TransferStatus) (out []*domain.Transfer, err error) {
	err = s.read(func(v *view) error { out, err = v.ListTransfers(ctx, status); return err })
	return
}

func (s *Store) CountTransfersByStatus(ctx context.Context, statuses ...domain.TransferStatus) (out int64, err error) {
	err = s.read(func(v *view) error { out, err = v.CountTransfersByStatus(ctx, statuses...); return err })
	return
}

func (s *Store) InsertDebt(ctx context.Context, d *domain.Debt) error {
	return s.read(func(v *view) error { return v.InsertDebt(ctx, d) })
}

func (s *Store) GetDebt(ctx context.Context, id int64) (out *domain.Debt, err error) {
	err = s.read(func(v *view) error { out, err = v.GetDebt(ctx, id); return err })
	return
}

func (s *Store) GetDebtForUpdate(ctx context.Context, id int64) (*domain.Debt, error) {
	return s.GetDebt(ctx, id)
}

func (s *Store) UpdateDebt(ctx context.Context, d *domain.Debt) error {
	return s.read(func(v *view) error { return v.UpdateDebt(ctx, d) })
}

func (s *Store) DebtTotals(ctx context.Context) (total, paid decimal.Decimal, err error) {
	err = s.read(func(v *view) error { total, paid, err = v.DebtTotals(ctx); return err })
	return
}

func (s *Store) CountUnpaidCreditors(ctx context.Context) (out int64, err error) {
	err = s.read(func(v *view) error { out, err = v.CountUnpaidCreditors(ctx); return err })
	return
}

func (s *Store) InsertDebtPayment(ctx context.Context, p *domain.DebtPayment) error {
	return s.read(func(v *view) error { return v.InsertDebtPayment(ctx, p) })
}

func (s *Store) GetDebtPayment(ctx context.Context, id int64) (out *domain.DebtPayment, err error) {
	err = s.read(func(v *view) error { out, err = v.GetDebtPayment(ctx, id); return err })
	return
}

func (s *Store) ListPaymentsByDebt(ctx context.Context, debtID int64) (out []*domain.DebtPayment, err error) {
	err = s.read(func(v *view) error { out, err = v.ListPaymentsByDebt(ctx, debtID); return err })
	return
}

func (s *Store) DeleteDebtPayment(ctx context.Context, id int64) error {
	return s.read(func(v *view) error { return v.DeleteDebtPayment(ctx, id) })
}
