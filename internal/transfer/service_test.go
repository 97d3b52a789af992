package transfer

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaleemAtefMater/specter-transfer/internal/domain"
	"github.com/SaleemAtefMater/specter-transfer/internal/ledger"
	"github.com/SaleemAtefMater/specter-transfer/internal/logger"
	"github.com/SaleemAtefMater/specter-transfer/internal/store/memory"
)

type fixture struct {
	ledger   *ledger.Service
	svc      *Service
	origin   *domain.Account
	delivery *domain.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	log := logger.NewWithWriter(io.Discard)
	lg := ledger.New(st, log)
	svc := New(st, lg, log)

	origin, err := lg.CreateAccount(ctx, "Main Bank", domain.AccountKindBank, "", "", dec("0"))
	require.NoError(t, err)
	delivery, err := lg.CreateAccount(ctx, "Cash Drawer", domain.AccountKindCash, "", "", dec("1000"))
	require.NoError(t, err)

	return &fixture{ledger: lg, svc: svc, origin: origin, delivery: delivery}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) balance(t *testing.T, accountID int64) string {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b.StringFixed(2)
}

func intakeInput(f *fixture) IntakeInput {
	return IntakeInput{
		OriginAccountID:   f.origin.ID,
		CustomerName:      "Ahmed",
		SentAmount:        dec("100.00"),
		TransferCost:      dec("10.00"),
		CustomerPrice:     dec("105.00"),
		ReceiverNetAmount: dec("90.00"),
		Status:            domain.TransferChecked,
	}
}

func TestIntakeCreditsHeldAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	assert.Regexp(t, `^TR\d{10}$`, tr.TransferNumber)
	assert.Equal(t, domain.TransferChecked, tr.Status)
	assert.Equal(t, "90.00", tr.HeldAmount().StringFixed(2))
	assert.Equal(t, "90.00", tr.Remaining.StringFixed(2))
	assert.Equal(t, "90.00", f.balance(t, f.origin.ID), "sent minus cost is held on the origin safe")

	entries, err := f.ledger.ListEntries(ctx, f.origin.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryTransferIn, entries[0].Kind)
	assert.Equal(t, domain.RefTransfer, entries[0].Reference.Kind)
	assert.Equal(t, tr.ID, entries[0].Reference.ID)
}

func TestIntakeDefaultsToPendingVerification(t *testing.T) {
	f := newFixture(t)

	in := intakeInput(f)
	in.Status = ""
	tr, err := f.svc.Intake(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPendingVerification, tr.Status)
}

func TestIntakeZeroMarginHoldsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := intakeInput(f)
	in.SentAmount = dec("50.00")
	in.TransferCost = dec("50.00")
	tr, err := f.svc.Intake(ctx, in)
	require.NoError(t, err)

	assert.True(t, tr.HeldAmount().IsZero())
	assert.Equal(t, "0.00", f.balance(t, f.origin.ID))
	entries, err := f.ledger.ListEntries(ctx, f.origin.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing to hold means no ledger entry")
}

func TestIntakeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ve *domain.ValidationError

	in := intakeInput(f)
	in.CustomerName = ""
	_, err := f.svc.Intake(ctx, in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "customer_name", ve.Field)

	in = intakeInput(f)
	in.SentAmount = decimal.Zero
	_, err = f.svc.Intake(ctx, in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sent_amount", ve.Field)

	in = intakeInput(f)
	in.TransferCost = dec("-1")
	_, err = f.svc.Intake(ctx, in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "transfer_cost", ve.Field)

	in = intakeInput(f)
	in.Status = domain.TransferDelivered
	_, err = f.svc.Intake(ctx, in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)

	in = intakeInput(f)
	in.OriginAccountID = 404
	var nf *domain.NotFoundError
	_, err = f.svc.Intake(ctx, in)
	require.ErrorAs(t, err, &nf)
}

func TestFullDeliveryReleasesHoldAndPaysOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	res, err := f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("90.00"), "full payout")
	require.NoError(t, err)

	assert.True(t, res.IsComplete)
	assert.Equal(t, domain.TransferDelivered, res.Transfer.Status)
	require.NotNil(t, res.Transfer.DeliveredAt)
	assert.Equal(t, "0.00", res.Remaining.StringFixed(2))
	assert.Equal(t, "0.00", res.Profit.StringFixed(2), "held 90 minus delivered 90")

	// Hold released from the origin, payout debited from the delivery safe.
	assert.Equal(t, "0.00", f.balance(t, f.origin.ID))
	assert.Equal(t, "910.00", f.balance(t, f.delivery.ID))

	entries, err := f.ledger.ListEntries(ctx, f.delivery.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Description, "Final payment")
	assert.Contains(t, res.Transfer.DeliveryNotes, "90.00 via Cash Drawer: full payout")
}

func TestPartialDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	res, err := f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("40.00"), "")
	require.NoError(t, err)
	assert.False(t, res.IsComplete)
	assert.Equal(t, domain.TransferPartiallyDelivered, res.Transfer.Status)
	assert.Equal(t, "50.00", res.Remaining.StringFixed(2))
	assert.Nil(t, res.Transfer.DeliveredAt)

	// The hold is released once, on the first delivery only.
	assert.Equal(t, "0.00", f.balance(t, f.origin.ID))
	assert.Equal(t, "960.00", f.balance(t, f.delivery.ID))

	res, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("50.00"), "")
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
	assert.Equal(t, "0.00", res.Remaining.StringFixed(2))
	assert.Equal(t, "910.00", f.balance(t, f.delivery.ID))

	originEntries, err := f.ledger.ListEntries(ctx, f.origin.ID)
	require.NoError(t, err)
	assert.Len(t, originEntries, 2, "intake credit plus one hold release")

	lines := res.Transfer.DeliveryNotes
	assert.Contains(t, lines, "40.00 via Cash Drawer")
	assert.Contains(t, lines, "50.00 via Cash Drawer")
}

func TestDeliveryWithinToleranceCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	// One cent short still counts as fully delivered.
	res, err := f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("89.99"), "")
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
	assert.Equal(t, domain.TransferDelivered, res.Transfer.Status)
}

func TestOverDeliveryRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	var ve *domain.ValidationError
	_, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("90.02"), "")
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Reason, "only 90.00 remaining")

	// A rejected delivery leaves balances untouched.
	assert.Equal(t, "90.00", f.balance(t, f.origin.ID))
	assert.Equal(t, "1000.00", f.balance(t, f.delivery.ID))
}

func TestDeliveryValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	var ve *domain.ValidationError
	_, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, decimal.Zero, "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "delivery_amount", ve.Field)

	var nf *domain.NotFoundError
	_, err = f.svc.Deliver(ctx, 404, f.delivery.ID, dec("10"), "")
	require.ErrorAs(t, err, &nf)
	_, err = f.svc.Deliver(ctx, tr.ID, 404, dec("10"), "")
	require.ErrorAs(t, err, &nf)
}

func TestDeliveryInsufficientBalanceRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	broke, err := f.ledger.CreateAccount(ctx, "Empty Wallet", domain.AccountKindWallet, "", "", dec("0"))
	require.NoError(t, err)

	var ib *domain.InsufficientBalanceError
	_, err = f.svc.Deliver(ctx, tr.ID, broke.ID, dec("90.00"), "")
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, broke.ID, ib.AccountID)

	// The hold on the origin safe is still intact and the transfer unchanged.
	assert.Equal(t, "90.00", f.balance(t, f.origin.ID))
	reloaded, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferChecked, reloaded.Status)
	assert.True(t, reloaded.TotalDelivered.IsZero())
}

func TestDeliverTerminalTransferRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)
	_, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("90.00"), "")
	require.NoError(t, err)

	var ist *domain.InvalidStateTransitionError
	_, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("1.00"), "")
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, string(domain.TransferDelivered), ist.Status)
}

func TestCancelBeforeDeliveryReversesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)
	assert.Equal(t, "90.00", f.balance(t, f.origin.ID))

	canceled, err := f.svc.Cancel(ctx, tr.ID, "customer changed their mind")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCanceled, canceled.Status)
	assert.Contains(t, canceled.Notes, "Canceled: customer changed their mind")
	assert.Equal(t, "0.00", f.balance(t, f.origin.ID), "the held amount is reversed")

	entries, err := f.ledger.ListEntries(ctx, f.origin.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryTransferOut, entries[1].Kind)
}

func TestCancelAfterPartialDeliveryKeepsReleasedFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)
	_, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("40.00"), "")
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(ctx, tr.ID, "receiver unreachable")
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCanceled, canceled.Status)

	// Hold was already released on first delivery and the partial payout is
	// not clawed back.
	assert.Equal(t, "0.00", f.balance(t, f.origin.ID))
	assert.Equal(t, "960.00", f.balance(t, f.delivery.ID))
}

func TestCancelValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	var ve *domain.ValidationError
	_, err = f.svc.Cancel(ctx, tr.ID, "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reason", ve.Field)

	_, err = f.svc.Deliver(ctx, tr.ID, f.delivery.ID, dec("90.00"), "")
	require.NoError(t, err)

	var ist *domain.InvalidStateTransitionError
	_, err = f.svc.Cancel(ctx, tr.ID, "too late")
	require.ErrorAs(t, err, &ist)
}

func TestListAndPendingCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)
	_, err = f.svc.Intake(ctx, intakeInput(f))
	require.NoError(t, err)

	count, err := f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = f.svc.Deliver(ctx, first.ID, f.delivery.ID, dec("90.00"), "")
	require.NoError(t, err)

	count, err = f.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	delivered, err := f.svc.List(ctx, domain.TransferDelivered)
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, first.ID, delivered[0].ID)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
