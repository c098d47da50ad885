package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentType selects the sign of a manual statement adjustment.
type AdjustmentType string

const (
	// AdjustmentCredit reduces the statement total.
	AdjustmentCredit AdjustmentType = "credit"
	// AdjustmentDebit increases the statement total.
	AdjustmentDebit AdjustmentType = "debit"
)

// Valid reports whether t is a known adjustment type.
func (t AdjustmentType) Valid() bool {
	return t == AdjustmentCredit || t == AdjustmentDebit
}

// Sign returns -1 for credits and +1 for debits.
func (t AdjustmentType) Sign() decimal.Decimal {
	if t == AdjustmentCredit {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Advance records a statement prepayment and everything it touched so the
// operation can be undone exactly.
type Advance struct {
	StatementMonth          time.Time
	CreatedAt               time.Time
	Amount                  decimal.Decimal
	ID                      string
	OwnerID                 string
	CardID                  string
	AdjustmentPurchaseID    string
	AdjustmentInstallmentID string
	SettledInstallmentIDs   []string
}
