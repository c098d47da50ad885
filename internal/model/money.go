package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cent is the smallest representable currency unit.
var Cent = decimal.New(1, -2)

// Round2 rounds an amount to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// InstallmentValue returns round2(total / count). The rounding remainder is
// not redistributed, so the sum of all installments may drift from the total
// by at most count * 0.005.
func InstallmentValue(total decimal.Decimal, count int) decimal.Decimal {
	if count < 1 {
		return decimal.Zero
	}
	return Round2(total.Div(decimal.NewFromInt(int64(count))))
}

// ParseAmount parses a user supplied amount, accepting an optional leading
// currency symbol.
func ParseAmount(s string) (decimal.Decimal, error) {
	trimmed := s
	for len(trimmed) > 0 && (trimmed[0] == '$' || trimmed[0] == ' ') {
		trimmed = trimmed[1:]
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Round2(d), nil
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
