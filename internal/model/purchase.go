// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/common"
)

// PurchaseKind describes how a purchase contributes to statements.
type PurchaseKind string

const (
	// KindSingle is a one-off charge.
	KindSingle PurchaseKind = "single"
	// KindInstallment is a purchase split into monthly installments.
	KindInstallment PurchaseKind = "installment"
	// KindRecurring is a fixed monthly charge such as a subscription.
	KindRecurring PurchaseKind = "recurring"
	// KindAdjustment is a manual credit or debit applied to a statement.
	KindAdjustment PurchaseKind = "adjustment"
	// KindReversal cancels some or all installments of another purchase.
	KindReversal PurchaseKind = "reversal"
)

// Valid reports whether k is a known kind.
func (k PurchaseKind) Valid() bool {
	switch k {
	case KindSingle, KindInstallment, KindRecurring, KindAdjustment, KindReversal:
		return true
	}
	return false
}

// Amortizing reports whether purchases of this kind expand into a contiguous
// installment series that the repair job is allowed to regenerate.
func (k PurchaseKind) Amortizing() bool {
	return k == KindSingle || k == KindInstallment || k == KindRecurring
}

// Purchase is one logical acquisition. TotalAmount is always the whole
// purchase value, never a single installment's value.
type Purchase struct {
	PurchaseDate       time.Time
	StatementMonth     time.Time // month of the first created installment
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CategoryID         *int64
	ReversedPurchaseID *string
	TotalAmount        decimal.Decimal
	ID                 string
	OwnerID            string
	CardID             string
	Description        string
	PayerRef           string
	Kind               PurchaseKind
	InstallmentCount   int
	StartIndex         int
	IsActive           bool
}

// ApplyDefaults fills optional fields with their documented defaults.
func (p *Purchase) ApplyDefaults() {
	if p.StartIndex == 0 {
		p.StartIndex = 1
	}
	if p.Kind == "" {
		if p.InstallmentCount > 1 {
			p.Kind = KindInstallment
		} else {
			p.Kind = KindSingle
		}
	}
	p.Description = strings.TrimSpace(p.Description)
	p.PayerRef = strings.TrimSpace(p.PayerRef)
	p.TotalAmount = Round2(p.TotalAmount)
	if !p.StatementMonth.IsZero() {
		p.StatementMonth = MonthOf(p.StatementMonth)
	}
}

// Validate checks the purchase invariants. It does not require a statement
// month because that may still be resolved from the purchase date.
func (p *Purchase) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return common.NewValidationError("owner_id", "is required")
	}
	if strings.TrimSpace(p.CardID) == "" {
		return common.NewValidationError("card_id", "is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return common.NewValidationError("description", "is required")
	}
	if !p.Kind.Valid() {
		return common.NewValidationError("kind", "unknown purchase kind "+string(p.Kind))
	}
	if !p.TotalAmount.IsPositive() {
		return common.NewValidationError("total_amount", "must be positive")
	}
	if p.InstallmentCount < 1 {
		return common.NewValidationError("installment_count", "must be at least 1")
	}
	if p.StartIndex < 1 {
		return common.NewValidationError("start_index", "must be at least 1")
	}
	if p.StartIndex > p.InstallmentCount {
		return common.NewValidationError("start_index", "must not exceed installment count")
	}
	if p.Kind == KindAdjustment && p.InstallmentCount != 1 {
		return common.NewValidationError("installment_count", "adjustments have exactly one installment")
	}
	if p.PurchaseDate.IsZero() {
		return common.NewValidationError("purchase_date", "is required")
	}
	return nil
}

// InstallmentsToCreate is the number of installments expansion produces.
func (p *Purchase) InstallmentsToCreate() int {
	return p.InstallmentCount - p.StartIndex + 1
}

// InstallmentValue is the per-installment value of this purchase.
func (p *Purchase) InstallmentValue() decimal.Decimal {
	return InstallmentValue(p.TotalAmount, p.InstallmentCount)
}

// Recurrence returns the recurrence kind for installments of this purchase.
func (p *Purchase) Recurrence() Recurrence {
	if p.Kind == KindRecurring {
		return RecurrenceFixed
	}
	return RecurrenceNormal
}

// PurchaseState is the derived lifecycle state of a purchase.
type PurchaseState string

// Lifecycle states.
const (
	StateDraft            PurchaseState = "draft"
	StateActive           PurchaseState = "active"
	StatePartiallySettled PurchaseState = "partially_settled"
	StateClosed           PurchaseState = "closed"
	StateReversed         PurchaseState = "reversed"
	StateRetired          PurchaseState = "retired"
)

// DeriveState computes the lifecycle state from a purchase, its active
// installments and whether an active reversal references it.
func DeriveState(p *Purchase, installments []Installment, reversed bool) PurchaseState {
	if !p.IsActive {
		return StateRetired
	}
	if reversed {
		return StateReversed
	}

	total, settled := 0, 0
	for _, inst := range installments {
		if !inst.IsActive {
			continue
		}
		total++
		if inst.Settled {
			settled++
		}
	}

	switch {
	case total == 0:
		return StateDraft
	case settled == 0:
		return StateActive
	case settled == total:
		return StateClosed
	default:
		return StatePartiallySettled
	}
}
