package domain

import "fmt"

// Sequence-number prefixes, matching the numbers printed on receipts.
const (
	SeqPrefixTransaction = "TXN"
	SeqPrefixTransfer    = "TR"
	SeqPrefixDebt        = "DEBT"
	SeqPrefixPayment     = "PAY"
)

// FormatSequence renders a year-scoped sequence number, e.g. TXN2026000042.
func FormatSequence(prefix string, year int, n int64) string {
	return fmt.Sprintf("%s%d%06d", prefix, year, n)
}
