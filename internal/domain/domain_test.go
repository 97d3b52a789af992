package domain

import (
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEntryKindDirection(t *testing.T) {
	assert.Equal(t, DirectionCredit, EntryDeposit.Direction())
	assert.Equal(t, DirectionCredit, EntryTransferIn.Direction())
	assert.Equal(t, DirectionDebit, EntryWithdrawal.Direction())
	assert.Equal(t, DirectionDebit, EntryTransferOut.Direction())
	assert.Equal(t, DirectionDebit, EntryDebtPayment.Direction())
}

func TestEntryKindValid(t *testing.T) {
	assert.True(t, EntryDeposit.Valid())
	assert.False(t, EntryKind("refund").Valid())
}

func TestReferenceValidate(t *testing.T) {
	require.NoError(t, ManualRef().Validate())
	require.NoError(t, TransferRef(7).Validate())
	require.NoError(t, PaymentRef(3).Validate())

	var ve *ValidationError
	require.ErrorAs(t, Reference{Kind: RefTransfer}.Validate(), &ve)
	require.ErrorAs(t, Reference{Kind: "invoice", ID: 1}.Validate(), &ve)
}

func TestDeriveDebtStatus(t *testing.T) {
	total := dec("500")
	assert.Equal(t, DebtNotPaid, DeriveDebtStatus(decimal.Zero, total))
	assert.Equal(t, DebtPartiallyPaid, DeriveDebtStatus(dec("200"), total))
	assert.Equal(t, DebtPaid, DeriveDebtStatus(dec("500"), total))
	assert.Equal(t, DebtPaid, DeriveDebtStatus(dec("500.01"), total))
}

func TestTransferStatusTransitions(t *testing.T) {
	assert.True(t, TransferPendingVerification.Deliverable())
	assert.True(t, TransferChecked.Deliverable())
	assert.True(t, TransferPartiallyDelivered.Deliverable())
	assert.False(t, TransferDelivered.Deliverable())
	assert.False(t, TransferCanceled.Deliverable())

	assert.True(t, TransferDelivered.Terminal())
	assert.True(t, TransferCanceled.Terminal())
	assert.False(t, TransferPartiallyDelivered.Terminal())
}

func TestTransferProfit(t *testing.T) {
	tr := &Transfer{
		SentAmount:     dec("100"),
		TransferCost:   dec("10"),
		TotalDelivered: dec("85"),
		Status:         TransferPartiallyDelivered,
	}
	assert.True(t, tr.Profit().IsZero(), "profit is only meaningful once delivered")

	tr.Status = TransferDelivered
	tr.TotalDelivered = dec("90")
	assert.Equal(t, "0.00", tr.Profit().StringFixed(2))

	tr.TotalDelivered = dec("85")
	assert.Equal(t, "5.00", tr.Profit().StringFixed(2))
}

func TestFormatSequence(t *testing.T) {
	year := time.Now().UTC().Year()
	assert.Equal(t, "TXN"+strconv.Itoa(year)+"000042", FormatSequence(SeqPrefixTransaction, year, 42))
	assert.Equal(t, "TR"+strconv.Itoa(year)+"000001", FormatSequence(SeqPrefixTransfer, year, 1))
}
