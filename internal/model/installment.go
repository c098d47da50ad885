package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Recurrence distinguishes regular installments from fixed recurring charges.
type Recurrence string

const (
	// RecurrenceNormal is an ordinary installment.
	RecurrenceNormal Recurrence = "normal"
	// RecurrenceFixed is a fixed monthly charge.
	RecurrenceFixed Recurrence = "fixed"
)

// Installment is one statement-month slice of a purchase.
type Installment struct {
	StatementMonth    time.Time
	CreatedAt         time.Time
	PurchaseDate      time.Time // denormalized from the owning purchase on reads
	Value             decimal.Decimal
	ID                string
	PurchaseID        string
	Description       string // denormalized from the owning purchase on reads
	Recurrence        Recurrence
	Index             int
	TotalInstallments int
	Settled           bool
	IsActive          bool
}

// Label renders the installment position as "k/n".
func (i *Installment) Label() string {
	return strconv.Itoa(i.Index) + "/" + strconv.Itoa(i.TotalInstallments)
}
