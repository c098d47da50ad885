package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
	"github.com/Veraticus/cardcycle/internal/testutil"
)

// seedStatement creates one single-installment charge per amount in June
// 2025, each bought a day after the previous one.
func seedStatement(t *testing.T, e *Engine, db *testutil.TestDB, amounts ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(amounts))
	for i, amount := range amounts {
		p := testutil.NewPurchase(db.OwnerID, db.Card.ID).
			Described("Charge " + amount).
			Total(amount).
			On(2025, time.May, 1+i).
			Month(2025, time.June).
			Build()
		series := mustCreate(t, e, db, p)
		ids = append(ids, series.Installments[0].ID)
	}
	return ids
}

type ledgerSnapshot struct {
	settled   map[string]bool
	purchases int
}

func snapshot(t *testing.T, db *testutil.TestDB) ledgerSnapshot {
	t.Helper()
	ctx := context.Background()
	installments, err := db.Storage.GetInstallments(ctx, service.InstallmentFilter{OwnerID: db.OwnerID})
	require.NoError(t, err)
	purchases, err := db.Storage.GetPurchases(ctx, service.PurchaseFilter{OwnerID: db.OwnerID})
	require.NoError(t, err)

	snap := ledgerSnapshot{settled: make(map[string]bool), purchases: len(purchases)}
	for _, inst := range installments {
		snap.settled[inst.ID] = inst.Settled
	}
	return snap
}

func TestAdvanceStatement_GreedyStopsAtFirstMisfit(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	ids := seedStatement(t, e, db, "80", "90", "120", "60")

	advance, err := e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{
		CardID:         db.Card.ID,
		StatementMonth: month(2025, time.June),
		Amount:         dec("250.00"),
		SettleOldest:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1]}, advance.SettledInstallmentIDs)

	credit, err := db.Storage.GetInstallment(ctx, db.OwnerID, advance.AdjustmentInstallmentID)
	require.NoError(t, err)
	assert.True(t, credit.Value.Equal(dec("-250")))
	assert.True(t, credit.Settled)
	assert.Equal(t, month(2025, time.June), credit.StatementMonth)

	adjustment := db.MustPurchase(advance.AdjustmentPurchaseID)
	assert.Equal(t, model.KindAdjustment, adjustment.Kind)

	summary, err := e.StatementSummary(ctx, db.OwnerID, db.Card.ID, month(2025, time.June))
	require.NoError(t, err)
	assert.Len(t, summary.Installments, 5)
	assert.True(t, summary.Charges.Equal(dec("350")))
	assert.True(t, summary.Credits.Equal(dec("-250")))
	assert.True(t, summary.Total.Equal(dec("100")))
	assert.True(t, summary.Outstanding.Equal(dec("180")), "outstanding %s", summary.Outstanding)
	assert.True(t, summary.Settled.Equal(dec("-80")), "settled %s", summary.Settled)
}

func TestAdvanceStatement_WithoutSettling(t *testing.T) {
	e, db := newTestEngine(t)
	seedStatement(t, e, db, "80", "90")

	advance, err := e.AdvanceStatement(context.Background(), db.OwnerID, AdvanceInput{
		CardID:         db.Card.ID,
		StatementMonth: month(2025, time.June),
		Amount:         dec("500"),
	})
	require.NoError(t, err)
	assert.Empty(t, advance.SettledInstallmentIDs)

	unsettled := false
	june := month(2025, time.June)
	open, err := db.Storage.GetInstallments(context.Background(), service.InstallmentFilter{
		OwnerID: db.OwnerID, StatementMonth: &june, Settled: &unsettled,
	})
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestAdvanceStatement_UndoRoundTrip(t *testing.T) {
	amounts := [][]string{
		{"80", "90", "120", "60"},
		{"10", "20", "30"},
		{"500"},
		{},
	}

	for _, charges := range amounts {
		e, db := newTestEngine(t)
		ctx := context.Background()
		seedStatement(t, e, db, charges...)

		// Pre-settled history must stay settled after undo.
		other := mustCreate(t, e, db, phonePurchase(db))
		settleIndices(t, e, db, other.Purchase.ID, 4)

		before := snapshot(t, db)

		advance, err := e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{
			CardID:         db.Card.ID,
			StatementMonth: month(2025, time.June),
			Amount:         dec("150"),
			SettleOldest:   true,
		})
		require.NoError(t, err)

		require.NoError(t, e.UndoAdvance(ctx, db.OwnerID, advance.ID))
		assert.Equal(t, before, snapshot(t, db), "charges %v", charges)

		_, err = db.Storage.GetAdvance(ctx, db.OwnerID, advance.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
		_, err = db.Storage.GetPurchase(ctx, db.OwnerID, advance.AdjustmentPurchaseID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	}
}

func TestAdvanceStatement_Validation(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	_, err := e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{CardID: db.Card.ID, StatementMonth: month(2025, time.June), Amount: dec("0")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{CardID: db.Card.ID, Amount: dec("10")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{CardID: "missing", StatementMonth: month(2025, time.June), Amount: dec("10")})
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = e.UndoAdvance(ctx, db.OwnerID, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAdvanceStatement_UndoIsOwnerScoped(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	seedStatement(t, e, db, "40")

	advance, err := e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{
		CardID: db.Card.ID, StatementMonth: month(2025, time.June), Amount: dec("40"), SettleOldest: true,
	})
	require.NoError(t, err)
	require.Len(t, advance.SettledInstallmentIDs, 1)

	assert.ErrorIs(t, e.UndoAdvance(ctx, "intruder", advance.ID), common.ErrNotFound)
	assert.NoError(t, e.UndoAdvance(ctx, db.OwnerID, advance.ID))
}

func TestAdvanceStatement_UndoAfterSettledInstallmentRegenerated(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	ids := seedStatement(t, e, db, "100")

	advance, err := e.AdvanceStatement(ctx, db.OwnerID, AdvanceInput{
		CardID:         db.Card.ID,
		StatementMonth: month(2025, time.June),
		Amount:         dec("100"),
		SettleOldest:   true,
	})
	require.NoError(t, err)
	require.Equal(t, ids, advance.SettledInstallmentIDs)

	// Unsettle and move the charge so its installment is regenerated.
	require.NoError(t, e.SetInstallmentSettled(ctx, db.OwnerID, ids[0], false))
	inst, err := db.Storage.GetInstallment(ctx, db.OwnerID, ids[0])
	require.NoError(t, err)
	july := month(2025, time.July)
	_, err = e.EditPurchase(ctx, db.OwnerID, inst.PurchaseID, PurchasePatch{StatementMonth: &july})
	require.NoError(t, err)
	_, err = db.Storage.GetInstallment(ctx, db.OwnerID, ids[0])
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, e.UndoAdvance(ctx, db.OwnerID, advance.ID))

	_, err = db.Storage.GetAdvance(ctx, db.OwnerID, advance.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = db.Storage.GetPurchase(ctx, db.OwnerID, advance.AdjustmentPurchaseID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	regenerated := db.MustInstallments(inst.PurchaseID)
	require.Len(t, regenerated, 1)
	assert.False(t, regenerated[0].Settled)
	assert.Equal(t, "2025-07", model.FormatMonth(regenerated[0].StatementMonth))
}
