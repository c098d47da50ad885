package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/model"
)

// PurchaseBuilder assembles purchase inputs for tests with a fluent API.
//
//	p := testutil.NewPurchase(db.OwnerID, db.Card.ID).
//		Described("Sofa").
//		Total("1200").
//		Installments(10).
//		Month(2025, time.June).
//		Build()
type PurchaseBuilder struct {
	p model.Purchase
}

// NewPurchase starts a single-installment purchase of 100.00 dated 2025-05-05.
func NewPurchase(ownerID, cardID string) *PurchaseBuilder {
	return &PurchaseBuilder{p: model.Purchase{
		OwnerID:          ownerID,
		CardID:           cardID,
		Description:      "Test purchase",
		TotalAmount:      decimal.NewFromInt(100),
		InstallmentCount: 1,
		StartIndex:       1,
		PurchaseDate:     time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC),
	}}
}

// Described sets the description.
func (b *PurchaseBuilder) Described(description string) *PurchaseBuilder {
	b.p.Description = description
	return b
}

// Total sets the total amount from a decimal string.
func (b *PurchaseBuilder) Total(amount string) *PurchaseBuilder {
	b.p.TotalAmount = decimal.RequireFromString(amount)
	return b
}

// Installments sets the installment count and switches the kind to installment.
func (b *PurchaseBuilder) Installments(n int) *PurchaseBuilder {
	b.p.InstallmentCount = n
	if n > 1 {
		b.p.Kind = model.KindInstallment
	}
	return b
}

// StartingAt sets the first installment index.
func (b *PurchaseBuilder) StartingAt(k int) *PurchaseBuilder {
	b.p.StartIndex = k
	return b
}

// Month pins the statement month of the first created installment.
func (b *PurchaseBuilder) Month(year int, month time.Month) *PurchaseBuilder {
	b.p.StatementMonth = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return b
}

// On sets the purchase date.
func (b *PurchaseBuilder) On(year int, month time.Month, day int) *PurchaseBuilder {
	b.p.PurchaseDate = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return b
}

// Kind overrides the purchase kind.
func (b *PurchaseBuilder) Kind(kind model.PurchaseKind) *PurchaseBuilder {
	b.p.Kind = kind
	return b
}

// Build returns a copy of the assembled purchase.
func (b *PurchaseBuilder) Build() model.Purchase {
	return b.p
}
