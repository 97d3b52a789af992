// Package postgres is the pgx-backed implementation of the store contract.
// Each unit of work is one database transaction at REPEATABLE READ; account
// rows are serialized with SELECT ... FOR UPDATE and sequence counters are
// bumped with an upsert, so concurrent operations never lose updates or
// collide on numbers.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store over a pgx connection pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

type queries struct {
	db dbtx
}

type storeTx struct {
	queries
}

// New connects the pool and verifies the database is reachable.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{queries: queries{db: pool}, pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for migrations and seeding.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// WithinTx runs fn inside one transaction. Any error rolls everything back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&storeTx{queries{db: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// mapErr translates driver errors into the domain taxonomy.
func mapErr(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// unique_violation or serialization_failure
		if pgErr.Code == "23505" || pgErr.Code == "40001" {
			return &domain.ConcurrencyConflictError{Entity: entity, ID: id}
		}
	}
	return err
}

// Accounts

const accountCols = "id, name, kind, account_number, active, current_balance, initial_balance, notes, last_updated, created_at, updated_at"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.Kind, &a.AccountNumber, &a.Active,
		&a.CurrentBalance, &a.InitialBalance, &a.Notes, &a.LastUpdated,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q queries) CreateAccount(ctx context.Context, a *domain.Account) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO accounts (name, kind, account_number, active, current_balance, initial_balance, notes, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $5, $6, now())
		 RETURNING id, created_at, updated_at, last_updated`,
		a.Name, a.Kind, a.AccountNumber, a.Active, a.InitialBalance, a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.LastUpdated)
	if err != nil {
		return mapErr(err, "account", 0)
	}
	a.CurrentBalance = a.InitialBalance
	return nil
}

func (q queries) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE id = $1 AND deleted_at IS NULL", id))
	if err != nil {
		return nil, mapErr(err, "account", id)
	}
	return a, nil
}

func (q queries) GetAccountForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", id))
	if err != nil {
		return nil, mapErr(err, "account", id)
	}
	return a, nil
}

func (q queries) UpdateAccount(ctx context.Context, a *domain.Account) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE accounts
		 SET name = $2, account_number = $3, active = $4, current_balance = $5,
		     notes = $6, last_updated = now(), updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		a.ID, a.Name, a.AccountNumber, a.Active, a.CurrentBalance, a.Notes)
	if err != nil {
		return mapErr(err, "account", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "account", ID: a.ID}
	}
	return nil
}

func (q queries) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := q.db.Query(ctx,
		"SELECT "+accountCols+" FROM accounts WHERE deleted_at IS NULL ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (q queries) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRow(ctx,
		"SELECT COALESCE(SUM(current_balance), 0) FROM accounts WHERE deleted_at IS NULL AND active",
	).Scan(&total)
	return total, err
}

// Ledger entries

func (q queries) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	var refID *int64
	if e.Reference.ID > 0 {
		refID = &e.Reference.ID
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO ledger_entries (sequence_number, account_id, kind, amount, description, reference_kind, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		e.SequenceNumber, e.AccountID, e.Kind, e.Amount, e.Description,
		e.Reference.Kind, refID, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return mapErr(err, "ledger_entry", 0)
	}
	return nil
}

func (q queries) ListEntriesByAccount(ctx context.Context, accountID int64) ([]*domain.LedgerEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, sequence_number, account_id, kind, amount, description, reference_kind, reference_id, created_at
		 FROM ledger_entries WHERE account_id = $1 ORDER BY id`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var refID *int64
		if err := rows.Scan(&e.ID, &e.SequenceNumber, &e.AccountID, &e.Kind,
			&e.Amount, &e.Description, &e.Reference.Kind, &refID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if refID != nil {
			e.Reference.ID = *refID
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Sequences

func (q queries) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var value int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO sequence_counters (scope, year, value) VALUES ($1, $2, 1)
		 ON CONFLICT (scope, year) DO UPDATE SET value = sequence_counters.value + 1
		 RETURNING value`,
		scope, year,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sequence %s/%d: %w", scope, year, err)
	}
	return value, nil
}

// Transfers

const transferCols = `id, transfer_number, origin_account_id, customer_name, phone,
	sent_amount, transfer_cost, customer_price, receiver_net_amount, status,
	delivery_account_id, delivery_amount, total_delivered_amount, remaining_amount,
	delivery_notes, delivered_at, notes, photo_ref, created_at, updated_at`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(&t.ID, &t.TransferNumber, &t.OriginAccountID, &t.CustomerName, &t.Phone,
		&t.SentAmount, &t.TransferCost, &t.CustomerPrice, &t.ReceiverNetAmount, &t.Status,
		&t.DeliveryAccountID, &t.DeliveryAmount, &t.TotalDelivered, &t.Remaining,
		&t.DeliveryNotes, &t.DeliveredAt, &t.Notes, &t.PhotoRef, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) InsertTransfer(ctx context.Context, t *domain.Transfer) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO transfers (transfer_number, origin_account_id, customer_name, phone,
		   sent_amount, transfer_cost, customer_price, receiver_net_amount, status,
		   delivery_amount, total_delivered_amount, remaining_amount, delivery_notes, notes, photo_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at, updated_at`,
		t.TransferNumber, t.OriginAccountID, t.CustomerName, t.Phone,
		t.SentAmount, t.TransferCost, t.CustomerPrice, t.ReceiverNetAmount, t.Status,
		t.DeliveryAmount, t.TotalDelivered, t.Remaining, t.DeliveryNotes, t.Notes, t.PhotoRef,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return mapErr(err, "transfer", 0)
	}
	return nil
}

func (q queries) GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error) {
	t, err := scanTransfer(q.db.QueryRow(ctx,
		"SELECT "+transferCols+" FROM transfers WHERE id = $1 AND deleted_at IS NULL", id))
	if err != nil {
		return nil, mapErr(err, "transfer", id)
	}
	return t, nil
}

func (q queries) GetTransferForUpdate(ctx context.Context, id int64) (*domain.Transfer, error) {
	t, err := scanTransfer(q.db.QueryRow(ctx,
		"SELECT "+transferCols+" FROM transfers WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", id))
	if err != nil {
		return nil, mapErr(err, "transfer", id)
	}
	return t, nil
}

func (q queries) UpdateTransfer(ctx context.Context, t *domain.Transfer) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE transfers
		 SET status = $2, delivery_account_id = $3, delivery_amount = $4,
		     total_delivered_amount = $5, remaining_amount = $6, delivery_notes = $7,
		     delivered_at = $8, notes = $9, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		t.ID, t.Status, t.DeliveryAccountID, t.DeliveryAmount,
		t.TotalDelivered, t.Remaining, t.DeliveryNotes, t.DeliveredAt, t.Notes)
	if err != nil {
		return mapErr(err, "transfer", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "transfer", ID: t.ID}
	}
	return nil
}

func (q queries) ListTransfers(ctx context.Context, status domain.TransferStatus) ([]*domain.Transfer, error) {
	query := "SELECT " + transferCols + " FROM transfers WHERE deleted_at IS NULL"
	args := []any{}
	if status != "" {
		query += " AND status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (q queries) CountTransfersByStatus(ctx context.Context, statuses ...domain.TransferStatus) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM transfers WHERE deleted_at IS NULL AND status = ANY($1)",
		statuses,
	).Scan(&count)
	return count, err
}

// Debts

const debtCols = `id, debt_number, creditor_name, creditor_phone, total_amount, paid_amount,
	remaining_amount, funding_account_id, status, due_date, notes, created_at, updated_at`

func scanDebt(row pgx.Row) (*domain.Debt, error) {
	var d domain.Debt
	err := row.Scan(&d.ID, &d.DebtNumber, &d.CreditorName, &d.CreditorPhone,
		&d.TotalAmount, &d.PaidAmount, &d.Remaining, &d.FundingAccountID,
		&d.Status, &d.DueDate, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (q queries) InsertDebt(ctx context.Context, d *domain.Debt) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO debts (debt_number, creditor_name, creditor_phone, total_amount,
		   paid_amount, remaining_amount, funding_account_id, status, due_date, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		d.DebtNumber, d.CreditorName, d.CreditorPhone, d.TotalAmount,
		d.PaidAmount, d.Remaining, d.FundingAccountID, d.Status, d.DueDate, d.Notes,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapErr(err, "debt", 0)
	}
	return nil
}

func (q queries) GetDebt(ctx context.Context, id int64) (*domain.Debt, error) {
	d, err := scanDebt(q.db.QueryRow(ctx,
		"SELECT "+debtCols+" FROM debts WHERE id = $1 AND deleted_at IS NULL", id))
	if err != nil {
		return nil, mapErr(err, "debt", id)
	}
	return d, nil
}

func (q queries) GetDebtForUpdate(ctx context.Context, id int64) (*domain.Debt, error) {
	d, err := scanDebt(q.db.QueryRow(ctx,
		"SELECT "+debtCols+" FROM debts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", id))
	if err != nil {
		return nil, mapErr(err, "debt", id)
	}
	return d, nil
}

func (q queries) UpdateDebt(ctx context.Context, d *domain.Debt) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE debts
		 SET paid_amount = $2, remaining_amount = $3, status = $4, notes = $5, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL`,
		d.ID, d.PaidAmount, d.Remaining, d.Status, d.Notes)
	if err != nil {
		return mapErr(err, "debt", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "debt", ID: d.ID}
	}
	return nil
}

func (q queries) DebtTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var total, paid decimal.Decimal
	err := q.db.QueryRow(ctx,
		"SELECT COALESCE(SUM(total_amount), 0), COALESCE(SUM(paid_amount), 0) FROM debts WHERE deleted_at IS NULL",
	).Scan(&total, &paid)
	return total, paid, err
}

func (q queries) CountUnpaidCreditors(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT creditor_name) FROM debts
		 WHERE deleted_at IS NULL AND status NOT IN ($1, $2)`,
		domain.DebtPaid, domain.DebtCanceled,
	).Scan(&count)
	return count, err
}

// Debt payments

const paymentCols = "id, payment_number, debt_id, account_id, payment_amount, payment_date, notes, created_at"

func scanPayment(row pgx.Row) (*domain.DebtPayment, error) {
	var p domain.DebtPayment
	err := row.Scan(&p.ID, &p.PaymentNumber, &p.DebtID, &p.AccountID,
		&p.Amount, &p.PaymentDate, &p.Notes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) InsertDebtPayment(ctx context.Context, p *domain.DebtPayment) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO debt_payments (payment_number, debt_id, account_id, payment_amount, payment_date, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		p.PaymentNumber, p.DebtID, p.AccountID, p.Amount, p.PaymentDate, p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return mapErr(err, "debt_payment", 0)
	}
	return nil
}

func (q queries) GetDebtPayment(ctx context.Context, id int64) (*domain.DebtPayment, error) {
	p, err := scanPayment(q.db.QueryRow(ctx,
		"SELECT "+paymentCols+" FROM debt_payments WHERE id = $1 AND deleted_at IS NULL", id))
	if err != nil {
		return nil, mapErr(err, "debt_payment", id)
	}
	return p, nil
}

func (q queries) ListPaymentsByDebt(ctx context.Context, debtID int64) ([]*domain.DebtPayment, error) {
	rows, err := q.db.Query(ctx,
		"SELECT "+paymentCols+" FROM debt_payments WHERE debt_id = $1 AND deleted_at IS NULL ORDER BY id",
		debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.DebtPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (q queries) DeleteDebtPayment(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx,
		"UPDATE debt_payments SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return mapErr(err, "debt_payment", id)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Entity: "debt_payment", ID: id}
	}
	return nil
}
