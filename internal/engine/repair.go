package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

// RepairReport summarises one repair run.
type RepairReport struct {
	Failures []ItemError
	Scanned  int
	Repaired int
	Created  int
}

// ProgressFunc is told how many of total purchases have been processed.
type ProgressFunc func(done, total int)

// Repair scans the owner's active amortizing purchases and regenerates any
// installment missing from the window [StartIndex, InstallmentCount].
// Regenerated installments in months before the current one are marked
// settled. Repair only inserts, so running it repeatedly or next to normal
// use is safe. A failing purchase is recorded and the scan continues.
func (e *Engine) Repair(ctx context.Context, ownerID string, progress ProgressFunc) (*RepairReport, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	purchases, err := e.storage.GetPurchases(ctx, service.PurchaseFilter{
		OwnerID:    ownerID,
		ActiveOnly: true,
		Kinds:      []model.PurchaseKind{model.KindSingle, model.KindInstallment, model.KindRecurring},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}

	slog.Info("Starting repair", "owner_id", ownerID, "purchases", len(purchases))

	currentMonth := model.MonthOf(e.now().UTC())
	report := &RepairReport{}
	for i := range purchases {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		p := &purchases[i]
		created, err := e.repairPurchase(ctx, p, currentMonth)
		report.Scanned++
		if err != nil {
			report.Failures = append(report.Failures, ItemError{Key: p.ID, Err: err})
			common.LogError(ctx, err, "Failed to repair purchase", common.Fields{
				"purchase_id": p.ID,
				"description": p.Description,
			})
		} else if created > 0 {
			report.Repaired++
			report.Created += created
		}

		if progress != nil {
			progress(i+1, len(purchases))
		}
	}

	slog.Info("Repair finished",
		"scanned", report.Scanned,
		"repaired", report.Repaired,
		"created", report.Created,
		"failures", len(report.Failures))
	return report, nil
}

// repairPurchase regenerates the missing indices of one purchase.
func (e *Engine) repairPurchase(ctx context.Context, p *model.Purchase, currentMonth time.Time) (int, error) {
	expected := p.InstallmentsToCreate()
	existing, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:    p.OwnerID,
		PurchaseID: p.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load installments: %w", err)
	}

	present := make(map[int]bool, len(existing))
	inWindow := 0
	for _, inst := range existing {
		present[inst.Index] = true
		if inst.Index >= p.StartIndex && inst.Index <= p.InstallmentCount {
			inWindow++
		}
	}
	if inWindow >= expected {
		return 0, nil
	}

	missing := Expand(p, p.InstallmentValue(), present)
	for i := range missing {
		missing[i].Settled = missing[i].StatementMonth.Before(currentMonth)
	}

	created, err := insertInstallments(ctx, e.storage, missing)
	if err != nil {
		return created, err
	}

	slog.Info("Repaired purchase",
		"purchase_id", p.ID,
		"expected", expected,
		"found", inWindow,
		"created", created)
	return created, nil
}
