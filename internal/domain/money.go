package domain

import "github.com/shopspring/decimal"

// Epsilon is the tolerance applied when comparing monetary amounts.
// Deliveries and payments are allowed to land within one cent of their target.
var Epsilon = decimal.New(1, -2)

// RoundMoney normalizes an amount to the 2-digit scale used across the ledger.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
