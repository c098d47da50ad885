package fingerprint

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/cardcycle/internal/model"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Café  Açaí", want: "cafe acai"},
		{in: "  PHONE\t- 12x ", want: "phone - 12x"},
		{in: "Ångström Über", want: "angstrom uber"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestStripInstallmentSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Notebook Installment 3/12", want: "Notebook"},
		{in: "Notebook - Parcela 3 de 12", want: "Notebook"},
		{in: "item - 3/6", want: "item"},
		{in: "item (3/6)", want: "item"},
		{in: "item 3/6", want: "item"},
		{in: "item (3/6) extra", want: "item extra"},
		{in: "Loja Installment 3/12 extra", want: "Loja extra"},
		{in: "Loja Installment 3 of 12 extra", want: "Loja extra"},
		{in: "Parcela 3/12 - Loja", want: "Loja"},
		{in: "Loja - Parcela 3/12", want: "Loja"},
		{in: "MAGAZINE LUIZA 02/10 -", want: "MAGAZINE LUIZA"},
		{in: "Phone - 12x", want: "Phone - 12x"},
		{in: "Concert 25/12", want: "Concert 25/12"},
		{in: "Plain purchase", want: "Plain purchase"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripInstallmentSuffix(tt.in), tt.in)
	}
}

func TestParseInstallmentSuffix(t *testing.T) {
	k, n, ok := ParseInstallmentSuffix("TV SAMSUNG 04/10")
	assert.True(t, ok)
	assert.Equal(t, 4, k)
	assert.Equal(t, 10, n)

	k, n, ok = ParseInstallmentSuffix("Sofa Parcela 2 de 6")
	assert.True(t, ok)
	assert.Equal(t, 2, k)
	assert.Equal(t, 6, n)

	_, _, ok = ParseInstallmentSuffix("Concert 25/12")
	assert.False(t, ok)

	_, _, ok = ParseInstallmentSuffix("Groceries")
	assert.False(t, ok)
}

func TestBaseStatementMonth(t *testing.T) {
	assert.Equal(t, month(2025, 3), BaseStatementMonth(month(2025, 5), 3))
	assert.Equal(t, month(2024, 12), BaseStatementMonth(month(2025, 2), 3))
	assert.Equal(t, month(2025, 5), BaseStatementMonth(month(2025, 5), 1))
	assert.Equal(t, month(2025, 5), BaseStatementMonth(month(2025, 5), 0))
}

func TestFingerprint_Format(t *testing.T) {
	fp := Fingerprint("Phone - 12x", 12, decimal.RequireFromString("1200"), month(2025, 3), 1)
	assert.Equal(t, "phone - 12x|12|1200.00|2025-03", fp)
}

func TestFingerprint_StableAcrossStartingIndex(t *testing.T) {
	total := decimal.RequireFromString("600.00")

	fromStart := Fingerprint("item - 1/6", 6, total, month(2025, 1), 1)
	fromThird := Fingerprint("item - 3/6", 6, total, month(2025, 3), 3)
	accented := Fingerprint("ÍTEM (3/6)", 6, total, month(2025, 3), 3)

	assert.Equal(t, fromStart, fromThird)
	assert.Equal(t, fromStart, accented)
}

func TestFingerprint_StableAcrossMarkerPosition(t *testing.T) {
	total := decimal.RequireFromString("1200.00")
	want := Fingerprint("Loja", 12, total, month(2025, 1), 1)

	for _, description := range []string{
		"Parcela 3/12 - Loja",
		"Loja - Parcela 3/12",
		"Loja Installment 3 of 12",
		"(3/12) Loja",
	} {
		assert.Equal(t, want, Fingerprint(description, 12, total, month(2025, 3), 3), description)
	}
}

func TestFingerprint_Differs(t *testing.T) {
	total := decimal.RequireFromString("600.00")
	base := Fingerprint("item", 6, total, month(2025, 1), 1)

	assert.NotEqual(t, base, Fingerprint("item", 5, total, month(2025, 1), 1))
	assert.NotEqual(t, base, Fingerprint("item", 6, decimal.RequireFromString("600.01"), month(2025, 1), 1))
	assert.NotEqual(t, base, Fingerprint("item", 6, total, month(2025, 2), 1))
	assert.NotEqual(t, base, Fingerprint("other item", 6, total, month(2025, 1), 1))
}

func TestOf(t *testing.T) {
	p := &model.Purchase{
		Description:      "Sofa Parcela 2 de 6",
		InstallmentCount: 6,
		StartIndex:       2,
		TotalAmount:      decimal.RequireFromString("1800"),
		StatementMonth:   month(2025, 7),
	}
	assert.Equal(t, "sofa|6|1800.00|2025-06", Of(p))
}
