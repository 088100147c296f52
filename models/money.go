package models

import "github.com/shopspring/decimal"

func init() {
	// Amounts travel as JSON numbers, the shape the storefront already reads.
	decimal.MarshalJSONWithoutQuotes = true
}

// LineSubtotal is quantity × unit price.
func LineSubtotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
