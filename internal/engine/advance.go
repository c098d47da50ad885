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

// AdvanceInput describes a statement prepayment.
type AdvanceInput struct {
	StatementMonth time.Time
	Amount         decimal.Decimal
	CardID         string
	// SettleOldest also settles unsettled charges, oldest purchase first,
	// while each one still fits in the remaining amount.
	SettleOldest bool
}

// AdvanceStatement applies a prepayment to a card statement. It creates a
// settled credit adjustment of -Amount in the target month and, when
// requested, settles the oldest unsettled charges it covers. The walk stops at
// the first charge larger than what remains; charges are never partially
// settled. The returned receipt is persisted so UndoAdvance can restore the
// exact previous state.
func (e *Engine) AdvanceStatement(ctx context.Context, ownerID string, in AdvanceInput) (*model.Advance, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, common.NewValidationError("amount", "must be positive")
	}
	if in.StatementMonth.IsZero() {
		return nil, common.NewValidationError("statement_month", "is required")
	}

	card, err := e.loadCard(ctx, e.storage, ownerID, in.CardID)
	if err != nil {
		return nil, err
	}

	amount := model.Round2(in.Amount)
	month := model.MonthOf(in.StatementMonth)
	adjustment := newSinglePurchase(ownerID, card.ID,
		"Statement advance "+model.FormatMonth(month),
		model.KindAdjustment, amount, e.now(), month)
	credit := adjustmentInstallment(adjustment, model.AdjustmentCredit, true)

	advance := &model.Advance{
		ID:                      uuid.NewString(),
		OwnerID:                 ownerID,
		CardID:                  card.ID,
		StatementMonth:          month,
		Amount:                  amount,
		AdjustmentPurchaseID:    adjustment.ID,
		AdjustmentInstallmentID: credit.ID,
		SettledInstallmentIDs:   []string{},
	}

	err = e.inTx(ctx, func(tx service.Transaction) error {
		if err := writeSeries(ctx, tx, adjustment, []model.Installment{credit}); err != nil {
			return err
		}

		if in.SettleOldest {
			ids, err := greedySettle(ctx, tx, ownerID, card.ID, month, amount)
			if err != nil {
				return err
			}
			advance.SettledInstallmentIDs = ids
		}

		return tx.SaveAdvance(ctx, advance)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Applied statement advance",
		"advance_id", advance.ID,
		"card_id", card.ID,
		"month", model.FormatMonth(month),
		"amount", model.FormatAmount(amount),
		"settled", len(advance.SettledInstallmentIDs))
	return advance, nil
}

// greedySettle walks the statement's unsettled charges oldest purchase first
// and settles each while it fits in the remaining amount.
func greedySettle(ctx context.Context, store service.Storage, ownerID, cardID string, month time.Time, amount decimal.Decimal) ([]string, error) {
	unsettled := false
	installments, err := store.GetInstallments(ctx, service.InstallmentFilter{
		OwnerID:        ownerID,
		CardID:         cardID,
		StatementMonth: &month,
		Settled:        &unsettled,
		ActiveOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load statement: %w", err)
	}

	remaining := amount
	ids := []string{}
	for _, inst := range installments {
		if !inst.Value.IsPositive() {
			continue
		}
		if !remaining.IsPositive() || inst.Value.GreaterThan(remaining) {
			break
		}
		ids = append(ids, inst.ID)
		remaining = remaining.Sub(inst.Value)
	}

	if err := store.SetInstallmentsSettled(ctx, ids, true); err != nil {
		return nil, fmt.Errorf("failed to settle installments: %w", err)
	}
	return ids, nil
}

// UndoAdvance reverts an advance: every installment it settled is unsettled
// again and the credit adjustment and receipt are deleted.
func (e *Engine) UndoAdvance(ctx context.Context, ownerID, advanceID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	advance, err := e.storage.GetAdvance(ctx, ownerID, advanceID)
	if err != nil {
		return fmt.Errorf("failed to load advance: %w", err)
	}

	var unsettled []string
	err = e.inTx(ctx, func(tx service.Transaction) error {
		var err error
		if unsettled, err = existingInstallmentIDs(ctx, tx, ownerID, advance.SettledInstallmentIDs); err != nil {
			return err
		}
		if err := tx.SetInstallmentsSettled(ctx, unsettled, false); err != nil {
			return fmt.Errorf("failed to unsettle installments: %w", err)
		}
		if err := tx.DeleteInstallment(ctx, advance.AdjustmentInstallmentID); err != nil {
			return fmt.Errorf("failed to delete advance credit: %w", err)
		}
		if err := tx.DeletePurchase(ctx, advance.AdjustmentPurchaseID); err != nil {
			return fmt.Errorf("failed to delete advance adjustment: %w", err)
		}
		return tx.DeleteAdvance(ctx, advance.ID)
	})
	if err != nil {
		return err
	}

	slog.Info("Undid statement advance",
		"advance_id", advance.ID,
		"unsettled", len(unsettled),
		"missing", len(advance.SettledInstallmentIDs)-len(unsettled))
	return nil
}

// existingInstallmentIDs filters ids down to installments still stored.
// Installments regenerated by an edit since the advance no longer exist and
// have nothing left to unsettle.
func existingInstallmentIDs(ctx context.Context, store service.Storage, ownerID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := store.GetInstallments(ctx, service.InstallmentFilter{OwnerID: ownerID, IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to load settled installments: %w", err)
	}

	present := make(map[string]bool, len(found))
	for _, inst := range found {
		present[inst.ID] = true
	}
	existing := make([]string, 0, len(found))
	for _, id := range ids {
		if present[id] {
			existing = append(existing, id)
			continue
		}
		slog.Warn("Installment settled by advance no longer exists", "installment_id", id)
	}
	return existing, nil
}
