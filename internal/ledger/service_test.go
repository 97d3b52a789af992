package ledger

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/logger"
	"github.com/SaleemAtefMater/specter-transfer/internal/store"
	"github.com/SaleemAtefMater/specter-transfer/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return New(st, logger.NewWithWriter(io.Discard)), st
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// reconcile recomputes initial + credits - debits from the entry log and
// compares it to the stored balance.
func reconcile(t *testing.T, svc *Service, accountID int64) {
	t.Helper()
	ctx := context.Background()
	account, err := svc.GetAccount(ctx, accountID)
	require.NoError(t, err)
	entries, err := svc.ListEntries(ctx, accountID)
	require.NoError(t, err)

	expected := account.InitialBalance
	for _, e := range entries {
		if e.Kind.Direction() == domain.DirectionCredit {
			expected = expected.Add(e.Amount)
		} else {
			expected = expected.Sub(e.Amount)
		}
	}
	assert.Equal(t, expected.StringFixed(2), account.CurrentBalance.StringFixed(2),
		"balance must reconcile against the entry log")
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var ve *domain.ValidationError

	_, err := svc.CreateAccount(ctx, "", domain.AccountKindBank, "", "", decimal.Zero)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	_, err = svc.CreateAccount(ctx, "Main", "vault", "", "", decimal.Zero)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "kind", ve.Field)

	_, err = svc.CreateAccount(ctx, "Main", domain.AccountKindBank, "", "", dec("-1"))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "initial_balance", ve.Field)
}

func TestCreateAccountStartsAtInitialBalance(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Main Bank", domain.AccountKindBank, "ACC-1", "", dec("250.505"))
	require.NoError(t, err)
	assert.True(t, account.Active)
	assert.Equal(t, "250.51", account.InitialBalance.StringFixed(2), "initial balance is rounded to cents")
	assert.Equal(t, "250.51", account.CurrentBalance.StringFixed(2))
}

func TestManualAdjustAddAndSubtract(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", decimal.Zero)
	require.NoError(t, err)

	adjusted, err := svc.ManualAdjust(ctx, account.ID, dec("100.00"), OpAdd, "opening float")
	require.NoError(t, err)
	assert.Equal(t, "100.00", adjusted.CurrentBalance.StringFixed(2))

	adjusted, err = svc.ManualAdjust(ctx, account.ID, dec("40.00"), OpSubtract, "petty cash out")
	require.NoError(t, err)
	assert.Equal(t, "60.00", adjusted.CurrentBalance.StringFixed(2))

	entries, err := svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryDeposit, entries[0].Kind)
	assert.Equal(t, domain.EntryWithdrawal, entries[1].Kind)
	assert.Equal(t, domain.RefManual, entries[0].Reference.Kind)

	reconcile(t, svc, account.ID)
}

func TestManualAdjustSetComputesDelta(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", decimal.Zero)
	require.NoError(t, err)
	_, err = svc.ManualAdjust(ctx, account.ID, dec("100.00"), OpAdd, "opening float")
	require.NoError(t, err)

	// Set below current balance writes a withdrawal for the difference.
	adjusted, err := svc.ManualAdjust(ctx, account.ID, dec("75.00"), OpSet, "recount")
	require.NoError(t, err)
	assert.Equal(t, "75.00", adjusted.CurrentBalance.StringFixed(2))

	// Set above writes a deposit.
	adjusted, err = svc.ManualAdjust(ctx, account.ID, dec("120.00"), OpSet, "recount")
	require.NoError(t, err)
	assert.Equal(t, "120.00", adjusted.CurrentBalance.StringFixed(2))

	entries, err := svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.EntryWithdrawal, entries[1].Kind)
	assert.Equal(t, "25.00", entries[1].Amount.StringFixed(2))
	assert.Equal(t, domain.EntryDeposit, entries[2].Kind)
	assert.Equal(t, "45.00", entries[2].Amount.StringFixed(2))

	// Setting to the current value records nothing.
	_, err = svc.ManualAdjust(ctx, account.ID, dec("120.00"), OpSet, "recount")
	require.NoError(t, err)
	entries, err = svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	reconcile(t, svc, account.ID)
}

func TestManualAdjustValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", decimal.Zero)
	require.NoError(t, err)

	var ve *domain.ValidationError

	_, err = svc.ManualAdjust(ctx, account.ID, dec("10"), OpAdd, "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reason", ve.Field)

	_, err = svc.ManualAdjust(ctx, account.ID, dec("0"), OpAdd, "noop")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "amount", ve.Field)

	_, err = svc.ManualAdjust(ctx, account.ID, dec("10"), "multiply", "typo")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "operation", ve.Field)

	var ib *domain.InsufficientBalanceError
	_, err = svc.ManualAdjust(ctx, account.ID, dec("10"), OpSubtract, "overdraw")
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, account.ID, ib.AccountID)

	// Failed adjustments leave no trace.
	entries, err := svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordEntryValidation(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", decimal.Zero)
	require.NoError(t, err)

	err = st.WithinTx(ctx, func(tx store.Tx) error {
		var ve *domain.ValidationError

		_, err := svc.RecordEntry(ctx, tx, account.ID, "wire", dec("10"), "", domain.ManualRef())
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "kind", ve.Field)

		_, err = svc.RecordEntry(ctx, tx, account.ID, domain.EntryDeposit, decimal.Zero, "", domain.ManualRef())
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)

		_, err = svc.RecordEntry(ctx, tx, account.ID, domain.EntryDeposit, dec("10"),
			"", domain.Reference{Kind: domain.RefTransfer})
		require.ErrorAs(t, err, &ve)
		return nil
	})
	require.NoError(t, err)
}

func TestSequenceNumbersAreDistinct(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", decimal.Zero)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.ManualAdjust(ctx, account.ID, dec("1"), OpAdd, "drip")
		require.NoError(t, err)
	}

	entries, err := svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	seen := make(map[string]bool)
	for _, e := range entries {
		assert.Regexp(t, `^TXN\d{10}$`, e.SequenceNumber)
		assert.False(t, seen[e.SequenceNumber], "duplicate sequence number %s", e.SequenceNumber)
		seen[e.SequenceNumber] = true
	}
}

func TestConcurrentAdjustmentsReconcile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account, err := svc.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", dec("1000"))
	require.NoError(t, err)

	const n = 30
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		op := OpAdd
		if i%2 == 0 {
			op = OpSubtract
		}
		go func(op AdjustOp) {
			defer wg.Done()
			_, err := svc.ManualAdjust(ctx, account.ID, dec("7.00"), op, "churn")
			assert.NoError(t, err)
		}(op)
	}
	wg.Wait()

	reconcile(t, svc, account.ID)
}

func TestTotalsAndSummary(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, "Main Bank", domain.AccountKindBank, "", "", dec("100"))
	require.NoError(t, err)

	b, err := svc.CreateAccount(ctx, "Wallet", domain.AccountKindWallet, "", "", decimal.Zero)
	require.NoError(t, err)
	_, err = svc.ManualAdjust(ctx, b.ID, dec("50"), OpAdd, "opening")
	require.NoError(t, err)

	total, err := svc.GetTotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "150.00", total.StringFixed(2))

	summary, err := svc.GetAccountSummary(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Main Bank", summary.Name)
	assert.Equal(t, "100.00", summary.Balance.StringFixed(2))

	ok, err := svc.HasSufficientBalance(ctx, b.ID, dec("50"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasSufficientBalance(ctx, b.ID, dec("50.01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var nf *domain.NotFoundError
	_, err := svc.GetBalance(ctx, 404)
	require.ErrorAs(t, err, &nf)
	_, err = svc.ListEntries(ctx, 404)
	require.ErrorAs(t, err, &nf)
	_, err = svc.ManualAdjust(ctx, 404, dec("1"), OpAdd, "ghost")
	require.ErrorAs(t, err, &nf)
}
