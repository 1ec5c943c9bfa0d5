package model

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is used when the configured ISO code is empty or unknown.
var DefaultCurrency = currency.USD

// ParseCurrency resolves an ISO 4217 code, falling back to DefaultCurrency.
// Examples: "INR" → currency.INR, "" → currency.USD, "XYZ" → currency.USD
func ParseCurrency(code string) currency.Unit {
	if code == "" {
		return DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return DefaultCurrency
	}
	return unit
}

// RoundCost rounds a float amount to the currency's standard minor-unit scale.
// Totals accumulate as float64; rounding only happens here, at display time.
// Examples (USD): 19.999 → "20.00", 0.1+0.2 → "0.30", NaN → "0.00"
func RoundCost(amount float64, unit currency.Unit) decimal.Decimal {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return decimal.Zero
	}
	scale, _ := currency.Standard.Rounding(unit)
	return decimal.NewFromFloat(amount).Round(int32(scale))
}

// FormatCost renders an amount with the currency symbol for display,
// e.g. 1234.5 USD → "$ 1234.50".
func FormatCost(amount float64, unit currency.Unit) string {
	scale, _ := currency.Standard.Rounding(unit)
	rounded := RoundCost(amount, unit)
	p := message.NewPrinter(language.English)
	return p.Sprintf("%v %s", currency.Symbol(unit), rounded.StringFixed(int32(scale)))
}
