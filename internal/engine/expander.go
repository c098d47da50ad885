package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

// Expand produces the installments of p starting at p.StartIndex, one
// statement month apart from p.StatementMonth, each carrying value. Indices
// present in skip are left out but still occupy their month.
func Expand(p *model.Purchase, value decimal.Decimal, skip map[int]bool) []model.Installment {
	toCreate := p.InstallmentsToCreate()
	installments := make([]model.Installment, 0, toCreate)
	for i := 0; i < toCreate; i++ {
		index := p.StartIndex + i
		if skip[index] {
			continue
		}
		installments = append(installments, model.Installment{
			ID:                uuid.NewString(),
			PurchaseID:        p.ID,
			Index:             index,
			TotalInstallments: p.InstallmentCount,
			Value:             value,
			StatementMonth:    model.AddMonths(p.StatementMonth, i),
			Recurrence:        p.Recurrence(),
			IsActive:          true,
		})
	}
	return installments
}

// CreatePurchase validates a purchase, resolves its billing window and
// persists it together with its installments. Either the purchase exists
// with at least one installment afterwards or nothing was written.
//
// When p.StatementMonth is zero the window is resolved from the purchase
// date and the card's closing day.
func (e *Engine) CreatePurchase(ctx context.Context, ownerID string, p model.Purchase) (*Series, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	p.OwnerID = ownerID
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case model.KindAdjustment:
		return nil, common.NewValidationError("kind", "adjustments are created with CreateAdjustment")
	case model.KindReversal:
		return nil, common.NewValidationError("kind", "reversals are created with ReverseInstallment")
	}
	if p.CategoryID != nil {
		if _, err := e.storage.GetCategoryByID(ctx, ownerID, *p.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to load category: %w", err)
		}
	}

	card, err := e.loadCard(ctx, e.storage, ownerID, p.CardID)
	if err != nil {
		return nil, err
	}
	if p.StatementMonth, err = e.resolveWindow(&p, card); err != nil {
		return nil, err
	}

	p.ID = uuid.NewString()
	p.IsActive = true
	p.PurchaseDate = p.PurchaseDate.UTC()

	installments := Expand(&p, p.InstallmentValue(), nil)
	if err := e.persistSeries(ctx, &p, installments); err != nil {
		return nil, err
	}

	slog.Info("Created purchase",
		"purchase_id", p.ID,
		"description", p.Description,
		"total", model.FormatAmount(p.TotalAmount),
		"installments", len(installments),
		"first_month", model.FormatMonth(p.StatementMonth))

	return &Series{Purchase: &p, Installments: installments}, nil
}

// persistSeries writes a purchase and its installments in one transaction.
func (e *Engine) persistSeries(ctx context.Context, p *model.Purchase, installments []model.Installment) error {
	return e.inTx(ctx, func(tx service.Transaction) error {
		return writeSeries(ctx, tx, p, installments)
	})
}

func writeSeries(ctx context.Context, store service.Storage, p *model.Purchase, installments []model.Installment) error {
	if err := store.InsertPurchase(ctx, p); err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	if _, err := insertInstallments(ctx, store, installments); err != nil {
		return err
	}

	count, err := store.CountInstallments(ctx, p.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("purchase %s expanded to no installments", p.ID)
	}
	return nil
}

// newSinglePurchase builds a one-installment purchase of the given kind.
func newSinglePurchase(ownerID, cardID, description string, kind model.PurchaseKind, amount decimal.Decimal, date, month time.Time) *model.Purchase {
	return &model.Purchase{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		CardID:           cardID,
		Description:      description,
		TotalAmount:      model.Round2(amount),
		InstallmentCount: 1,
		StartIndex:       1,
		PurchaseDate:     date.UTC(),
		StatementMonth:   model.MonthOf(month),
		Kind:             kind,
		IsActive:         true,
	}
}
