package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

// PurchasePatch lists the fields EditPurchase may change. Nil fields are
// left untouched.
type PurchasePatch struct {
	Description      *string
	CategoryID       *int64
	PayerRef         *string
	TotalAmount      *decimal.Decimal
	InstallmentCount *int
	StartIndex       *int
	StatementMonth   *time.Time
}

// ReverseScope selects which installments a reversal cancels.
type ReverseScope string

const (
	// ReverseThisInstallment cancels only the chosen installment.
	ReverseThisInstallment ReverseScope = "this_installment"
	// ReverseThisAndFuture cancels the chosen installment and every later one.
	ReverseThisAndFuture ReverseScope = "this_and_future"
)

// DeleteScope selects how DeletePurchase removes a purchase.
type DeleteScope string

const (
	// DeleteRetire marks the purchase and its installments inactive.
	DeleteRetire DeleteScope = "retire"
	// DeletePurge removes the purchase, its installments and linked reversals.
	DeletePurge DeleteScope = "purge"
)

// AdjustmentInput describes a manual statement credit or debit.
type AdjustmentInput struct {
	StatementMonth time.Time // zero resolves from Date and the card's closing day
	Date           time.Time // zero means now
	Amount         decimal.Decimal
	CardID         string
	Description    string
	Type           model.AdjustmentType
	Settled        bool
}

// EditPurchase applies patch to a purchase.
//
// A new total updates the value of unsettled installments only. A new count,
// start index or statement month regenerates the unsettled installments while
// keeping every settled index exactly where it is. Value-affecting edits on a
// retired or fully settled purchase are rejected.
func (e *Engine) EditPurchase(ctx context.Context, ownerID, purchaseID string, patch PurchasePatch) (*Series, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	current, err := e.storage.GetPurchase(ctx, ownerID, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	installments, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:    ownerID,
		PurchaseID: purchaseID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load installments: %w", err)
	}

	updated := *current
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.PayerRef != nil {
		updated.PayerRef = *patch.PayerRef
	}
	if patch.CategoryID != nil {
		if _, err := e.storage.GetCategoryByID(ctx, ownerID, *patch.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to load category: %w", err)
		}
		updated.CategoryID = patch.CategoryID
	}
	if patch.TotalAmount != nil {
		updated.TotalAmount = *patch.TotalAmount
	}
	if patch.InstallmentCount != nil {
		updated.InstallmentCount = *patch.InstallmentCount
	}
	if patch.StartIndex != nil {
		updated.StartIndex = *patch.StartIndex
	}
	if patch.StatementMonth != nil {
		updated.StatementMonth = *patch.StatementMonth
	}
	updated.ApplyDefaults()
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	valueChanged := !updated.TotalAmount.Equal(current.TotalAmount)
	windowChanged := updated.InstallmentCount != current.InstallmentCount ||
		updated.StartIndex != current.StartIndex ||
		!updated.StatementMonth.Equal(current.StatementMonth)

	// Settled indices are read before anything is deleted.
	settled := make(map[int]bool)
	maxSettled := 0
	for _, inst := range installments {
		if inst.Settled {
			settled[inst.Index] = true
			if inst.Index > maxSettled {
				maxSettled = inst.Index
			}
		}
	}

	if valueChanged || windowChanged {
		if err := checkSeriesEditable(current, installments); err != nil {
			return nil, err
		}
		if updated.InstallmentCount < maxSettled {
			return nil, common.NewValidationError("installment_count",
				fmt.Sprintf("cannot shrink below settled installment %d", maxSettled))
		}
	}

	err = e.inTx(ctx, func(tx service.Transaction) error {
		if err := tx.UpdatePurchase(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update purchase: %w", err)
		}

		switch {
		case windowChanged:
			if _, err := tx.DeleteUnsettledInstallments(ctx, purchaseID); err != nil {
				return err
			}
			regenerated := Expand(&updated, updated.InstallmentValue(), settled)
			if _, err := insertInstallments(ctx, tx, regenerated); err != nil {
				return err
			}
		case valueChanged:
			if _, err := tx.UpdateUnsettledInstallmentValues(ctx, purchaseID, updated.InstallmentValue()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Edited purchase",
		"purchase_id", purchaseID,
		"value_changed", valueChanged,
		"window_changed", windowChanged,
		"settled_kept", len(settled))

	return e.loadSeries(ctx, ownerID, purchaseID)
}

// checkSeriesEditable rejects value or window edits that would rewrite history.
func checkSeriesEditable(p *model.Purchase, installments []model.Installment) error {
	if !p.Kind.Amortizing() {
		return common.NewValidationError("kind", string(p.Kind)+" purchases cannot change value or window")
	}
	switch model.DeriveState(p, installments, false) {
	case model.StateRetired:
		return common.NewValidationError("purchase", "is retired")
	case model.StateClosed:
		return common.NewValidationError("purchase", "is fully settled")
	}
	return nil
}

// ReverseInstallment creates a reversal purchase that cancels installmentID,
// or it and every later unsettled installment of the same purchase. The reversal has
// one negative installment per reversed installment, in the same statement
// months and with the same indices.
func (e *Engine) ReverseInstallment(ctx context.Context, ownerID, installmentID string, scope ReverseScope) (*Series, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if scope != ReverseThisInstallment && scope != ReverseThisAndFuture {
		return nil, common.NewValidationError("scope", "must be this_installment or this_and_future")
	}

	target, err := e.storage.GetInstallment(ctx, ownerID, installmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load installment: %w", err)
	}
	original, err := e.storage.GetPurchase(ctx, ownerID, target.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	if !original.Kind.Amortizing() {
		return nil, common.NewValidationError("kind", "cannot reverse a "+string(original.Kind))
	}
	if !original.IsActive || !target.IsActive {
		return nil, common.NewValidationError("purchase", "is retired")
	}

	siblings, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:    ownerID,
		PurchaseID: original.ID,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load installments: %w", err)
	}

	var reversed []model.Installment
	for _, inst := range siblings {
		// Later installments already settled are history, not remaining debt.
		if inst.ID == target.ID || (scope == ReverseThisAndFuture && inst.Index > target.Index && !inst.Settled) {
			reversed = append(reversed, inst)
		}
	}
	sort.Slice(reversed, func(i, j int) bool { return reversed[i].Index < reversed[j].Index })

	if err := e.checkNotReversed(ctx, ownerID, original.ID, reversed); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, inst := range reversed {
		total = total.Add(inst.Value.Abs())
	}
	if !total.IsPositive() {
		return nil, common.NewValidationError("installment", "has no value to reverse")
	}

	reversal := &model.Purchase{
		ID:                 uuid.NewString(),
		OwnerID:            ownerID,
		CardID:             original.CardID,
		Description:        "Reversal of " + original.Description,
		TotalAmount:        model.Round2(total),
		InstallmentCount:   len(reversed),
		StartIndex:         1,
		PurchaseDate:       e.now().UTC(),
		StatementMonth:     reversed[0].StatementMonth,
		Kind:               model.KindReversal,
		CategoryID:         original.CategoryID,
		PayerRef:           original.PayerRef,
		ReversedPurchaseID: &original.ID,
		IsActive:           true,
	}

	value := reversal.InstallmentValue().Abs().Neg()
	installments := make([]model.Installment, 0, len(reversed))
	for _, inst := range reversed {
		installments = append(installments, model.Installment{
			ID:                uuid.NewString(),
			PurchaseID:        reversal.ID,
			Index:             inst.Index,
			TotalInstallments: inst.TotalInstallments,
			Value:             value,
			StatementMonth:    inst.StatementMonth,
			Recurrence:        model.RecurrenceNormal,
			IsActive:          true,
		})
	}

	if err := e.persistSeries(ctx, reversal, installments); err != nil {
		return nil, err
	}

	slog.Info("Reversed installments",
		"purchase_id", original.ID,
		"reversal_id", reversal.ID,
		"scope", scope,
		"count", len(installments))

	return &Series{Purchase: reversal, Installments: installments}, nil
}

// checkNotReversed rejects a reversal overlapping an active earlier one.
func (e *Engine) checkNotReversed(ctx context.Context, ownerID, purchaseID string, candidates []model.Installment) error {
	reversals, err := e.storage.GetPurchases(ctx, service.PurchaseFilter{
		OwnerID:            ownerID,
		ReversedPurchaseID: purchaseID,
		ActiveOnly:         true,
	})
	if err != nil {
		return fmt.Errorf("failed to load reversals: %w", err)
	}

	covered := make(map[int]bool)
	for _, r := range reversals {
		installments, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{
			OwnerID:    ownerID,
			PurchaseID: r.ID,
			ActiveOnly: true,
		})
		if err != nil {
			return fmt.Errorf("failed to load reversal installments: %w", err)
		}
		for _, inst := range installments {
			covered[inst.Index] = true
		}
	}

	for _, inst := range candidates {
		if covered[inst.Index] {
			return common.NewValidationError("installment",
				fmt.Sprintf("installment %s is already reversed", inst.Label()))
		}
	}
	return nil
}

// CreateAdjustment records a one-installment credit (negative) or debit
// (positive) on a card statement.
func (e *Engine) CreateAdjustment(ctx context.Context, ownerID string, in AdjustmentInput) (*Series, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, common.NewValidationError("type", "must be credit or debit")
	}
	if !in.Amount.IsPositive() {
		return nil, common.NewValidationError("amount", "must be positive")
	}

	card, err := e.loadCard(ctx, e.storage, ownerID, in.CardID)
	if err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = e.now()
	}
	month := in.StatementMonth
	if month.IsZero() {
		if month, err = e.resolver.ResolveStatementMonth(date, card.ClosingDay); err != nil {
			return nil, fmt.Errorf("failed to resolve statement month: %w", err)
		}
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Manual " + string(in.Type)
	}

	p := newSinglePurchase(ownerID, card.ID, description, model.KindAdjustment, in.Amount, date, month)
	inst := adjustmentInstallment(p, in.Type, in.Settled)
	if err := e.persistSeries(ctx, p, []model.Installment{inst}); err != nil {
		return nil, err
	}

	slog.Info("Created adjustment",
		"purchase_id", p.ID,
		"type", in.Type,
		"amount", model.FormatAmount(p.TotalAmount),
		"month", model.FormatMonth(p.StatementMonth))

	return &Series{Purchase: p, Installments: []model.Installment{inst}}, nil
}

func adjustmentInstallment(p *model.Purchase, t model.AdjustmentType, settled bool) model.Installment {
	return model.Installment{
		ID:                uuid.NewString(),
		PurchaseID:        p.ID,
		Index:             1,
		TotalInstallments: 1,
		Value:             p.TotalAmount.Abs().Mul(t.Sign()),
		StatementMonth:    p.StatementMonth,
		Recurrence:        model.RecurrenceNormal,
		Settled:           settled,
		IsActive:          true,
	}
}

// SetInstallmentSettled flips the settled flag of one installment.
func (e *Engine) SetInstallmentSettled(ctx context.Context, ownerID, installmentID string, settled bool) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	inst, err := e.storage.GetInstallment(ctx, ownerID, installmentID)
	if err != nil {
		return fmt.Errorf("failed to load installment: %w", err)
	}
	if err := e.storage.SetInstallmentsSettled(ctx, []string{inst.ID}, settled); err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	slog.Debug("Updated installment", "installment_id", inst.ID, "settled", settled)
	return nil
}

// SettleStatement settles every unsettled active installment of a card's
// statement and returns the identifiers it touched.
func (e *Engine) SettleStatement(ctx context.Context, ownerID, cardID string, month time.Time) ([]string, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if _, err := e.loadCard(ctx, e.storage, ownerID, cardID); err != nil {
		return nil, err
	}

	ids, err := e.unsettledIDs(ctx, e.storage, ownerID, cardID, month)
	if err != nil {
		return nil, err
	}
	if err := e.storage.SetInstallmentsSettled(ctx, ids, true); err != nil {
		return nil, fmt.Errorf("failed to settle statement: %w", err)
	}

	slog.Info("Settled statement", "card_id", cardID, "month", model.FormatMonth(month), "installments", len(ids))
	return ids, nil
}

func (e *Engine) unsettledIDs(ctx context.Context, store service.Storage, ownerID, cardID string, month time.Time) ([]string, error) {
	m := model.MonthOf(month)
	unsettled := false
	installments, err := store.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:        ownerID,
		CardID:         cardID,
		StatementMonth: &m,
		Settled:        &unsettled,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load statement: %w", err)
	}
	ids := make([]string, 0, len(installments))
	for _, inst := range installments {
		ids = append(ids, inst.ID)
	}
	return ids, nil
}

// UnsettleInstallments clears the settled flag on every listed installment.
// All of them must belong to ownerID.
func (e *Engine) UnsettleInstallments(ctx context.Context, ownerID string, ids []string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	owned, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{OwnerID: ownerID, IDs: ids})
	if err != nil {
		return fmt.Errorf("failed to load installments: %w", err)
	}
	if len(owned) != len(ids) {
		return common.NotFoundf("%d of %d installments", len(ids)-len(owned), len(ids))
	}
	return e.storage.SetInstallmentsSettled(ctx, ids, false)
}

// DeletePurchase removes a purchase according to scope. Retiring keeps the
// rows but marks them inactive. Purging deletes the purchase, its
// installments and any reversal linked to it, and is refused while any of
// those installments is settled.
func (e *Engine) DeletePurchase(ctx context.Context, ownerID, purchaseID string, scope DeleteScope) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if scope != DeleteRetire && scope != DeletePurge {
		return common.NewValidationError("scope", "must be retire or purge")
	}

	p, err := e.storage.GetPurchase(ctx, ownerID, purchaseID)
	if err != nil {
		return fmt.Errorf("failed to load purchase: %w", err)
	}

	if scope == DeleteRetire {
		if err := e.storage.SetPurchaseActive(ctx, p.ID, false); err != nil {
			return fmt.Errorf("failed to retire purchase: %w", err)
		}
		slog.Info("Retired purchase", "purchase_id", p.ID)
		return nil
	}

	reversals, err := e.storage.GetPurchases(ctx, service.PurchaseFilter{
		OwnerID:            ownerID,
		ReversedPurchaseID: p.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to load reversals: %w", err)
	}

	doomed := []string{p.ID}
	for _, r := range reversals {
		doomed = append(doomed, r.ID)
	}
	for _, id := range doomed {
		installments, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{OwnerID: ownerID, PurchaseID: id})
		if err != nil {
			return fmt.Errorf("failed to load installments: %w", err)
		}
		for _, inst := range installments {
			if inst.Settled {
				return common.NewValidationError("purchase",
					fmt.Sprintf("installment %s is settled; retire the purchase instead", inst.Label()))
			}
		}
	}

	err = e.inTx(ctx, func(tx service.Transaction) error {
		// Reversals reference the original and go first.
		for i := len(doomed) - 1; i >= 0; i-- {
			if err := tx.DeletePurchase(ctx, doomed[i]); err != nil {
				return fmt.Errorf("failed to delete purchase %s: %w", doomed[i], err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("Purged purchase", "purchase_id", p.ID, "reversals", len(reversals))
	return nil
}

// loadSeries reads a purchase and all its installments.
func (e *Engine) loadSeries(ctx context.Context, ownerID, purchaseID string) (*Series, error) {
	p, err := e.storage.GetPurchase(ctx, ownerID, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase: %w", err)
	}
	installments, err := e.storage.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:    ownerID,
		PurchaseID: purchaseID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load installments: %w", err)
	}
	return &Series{Purchase: p, Installments: installments}, nil
}
