package shared

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CalculateLineTotals computes discount, tax and total for one document line.
// All money math runs on decimals; floats never touch amounts.
func CalculateLineTotals(quantity int64, unitPrice, discountPercent, taxPercent decimal.Decimal) (discountAmount, taxAmount, lineTotal decimal.Decimal) {
	grossAmount := unitPrice.Mul(decimal.NewFromInt(quantity))
	discountAmount = grossAmount.Mul(discountPercent.Div(hundred)).Round(2)
	netAmount := grossAmount.Sub(discountAmount)
	taxAmount = netAmount.Mul(taxPercent.Div(hundred)).Round(2)
	lineTotal = netAmount.Add(taxAmount)
	return
}
