package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

// StatementSummary lists a card's active installments for one month with
// charge, credit and settlement totals.
func (e *Engine) StatementSummary(ctx context.Context, ownerID, cardID string, month time.Time) (*service.StatementSummary, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if _, err := e.loadCard(ctx, e.storage, ownerID, cardID); err != nil {
		return nil, err
	}

	m := model.MonthOf(month)
	installments, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:        ownerID,
		CardID:         cardID,
		StatementMonth: &m,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load statement: %w", err)
	}

	summary := &service.StatementSummary{
		StatementMonth: m,
		CardID:         cardID,
		Installments:   installments,
		Charges:        decimal.Zero,
		Credits:        decimal.Zero,
		Settled:        decimal.Zero,
		Outstanding:    decimal.Zero,
	}
	for _, inst := range installments {
		if inst.Value.IsNegative() {
			summary.Credits = summary.Credits.Add(inst.Value)
		} else {
			summary.Charges = summary.Charges.Add(inst.Value)
		}
		if inst.Settled {
			summary.Settled = summary.Settled.Add(inst.Value)
		} else {
			summary.Outstanding = summary.Outstanding.Add(inst.Value)
		}
	}
	summary.Total = summary.Charges.Add(summary.Credits)
	return summary, nil
}

// PurchaseDetails is a purchase with its installments, reversals and
// derived lifecycle state.
type PurchaseDetails struct {
	Series
	State     model.PurchaseState
	Reversals []model.Purchase
}

// DescribePurchase loads a purchase for display.
func (e *Engine) DescribePurchase(ctx context.Context, ownerID, purchaseID string) (*PurchaseDetails, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	series, err := e.loadSeries(ctx, ownerID, purchaseID)
	if err != nil {
		return nil, err
	}
	reversals, err := e.storage.GetPurchases(ctx, service.PurchaseFilter{
		OwnerID:            ownerID,
		ReversedPurchaseID: purchaseID,
		ActiveOnly:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load reversals: %w", err)
	}

	return &PurchaseDetails{
		Series:    *series,
		State:     model.DeriveState(series.Purchase, series.Installments, len(reversals) > 0),
		Reversals: reversals,
	}, nil
}
