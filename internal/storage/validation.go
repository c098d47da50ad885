// Package storage provides the data persistence layer for cardcycle.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/cardcycle/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidPurchase    = errors.New("invalid purchase")
	ErrInvalidInstallment = errors.New("invalid installment")
	ErrInvalidAdvance     = errors.New("invalid advance")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePurchase checks the fields the schema requires.
func validatePurchase(p *model.Purchase) error {
	if p == nil {
		return fmt.Errorf("%w: purchase", ErrNilParameter)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPurchase)
	}
	if p.OwnerID == "" || p.CardID == "" {
		return fmt.Errorf("%w: missing owner or card", ErrInvalidPurchase)
	}
	if p.StatementMonth.IsZero() {
		return fmt.Errorf("%w: missing statement month", ErrInvalidPurchase)
	}
	if p.InstallmentCount < 1 || p.StartIndex < 1 || p.StartIndex > p.InstallmentCount {
		return fmt.Errorf("%w: start index %d outside 1..%d", ErrInvalidPurchase, p.StartIndex, p.InstallmentCount)
	}
	return nil
}

// validateInstallment checks the fields the schema requires.
func validateInstallment(i *model.Installment) error {
	if i == nil {
		return fmt.Errorf("%w: installment", ErrNilParameter)
	}
	if i.ID == "" || i.PurchaseID == "" {
		return fmt.Errorf("%w: missing ID or purchase ID", ErrInvalidInstallment)
	}
	if i.Index < 1 {
		return fmt.Errorf("%w: index must be positive", ErrInvalidInstallment)
	}
	if i.StatementMonth.IsZero() {
		return fmt.Errorf("%w: missing statement month", ErrInvalidInstallment)
	}
	return nil
}

// validateAdvance checks the fields the schema requires.
func validateAdvance(a *model.Advance) error {
	if a == nil {
		return fmt.Errorf("%w: advance", ErrNilParameter)
	}
	if a.ID == "" || a.OwnerID == "" || a.CardID == "" {
		return fmt.Errorf("%w: missing ID, owner or card", ErrInvalidAdvance)
	}
	if a.AdjustmentPurchaseID == "" || a.AdjustmentInstallmentID == "" {
		return fmt.Errorf("%w: missing adjustment references", ErrInvalidAdvance)
	}
	return nil
}
