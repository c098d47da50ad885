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

func settleIndices(t *testing.T, e *Engine, db *testutil.TestDB, purchaseID string, indices ...int) {
	t.Helper()
	installments := byIndex(db.MustInstallments(purchaseID))
	for _, k := range indices {
		require.NoError(t, e.SetInstallmentSettled(context.Background(), db.OwnerID, installments[k].ID, true))
	}
}

func sixInstallments(db *testutil.TestDB) model.Purchase {
	return testutil.NewPurchase(db.OwnerID, db.Card.ID).
		Described("Sofa").
		Total("600").
		Installments(6).
		Month(2025, time.March).
		Build()
}

func TestEditPurchase_TotalKeepsSettledValues(t *testing.T) {
	e, db := newTestEngine(t)
	series := mustCreate(t, e, db, phonePurchase(db))
	settleIndices(t, e, db, series.Purchase.ID, 1, 2)

	total := dec("1500.00")
	edited, err := e.EditPurchase(context.Background(), db.OwnerID, series.Purchase.ID, PurchasePatch{TotalAmount: &total})
	require.NoError(t, err)
	assert.True(t, edited.Purchase.TotalAmount.Equal(total))

	for _, inst := range edited.Installments {
		if inst.Settled {
			assert.True(t, inst.Value.Equal(dec("100")), "settled installment %d changed to %s", inst.Index, inst.Value)
		} else {
			assert.True(t, inst.Value.Equal(dec("125")), "unsettled installment %d has %s", inst.Index, inst.Value)
		}
	}
	assert.Len(t, edited.Installments, 12)
}

func TestEditPurchase_RejectsValueEditOnClosedPurchase(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	p := testutil.NewPurchase(db.OwnerID, db.Card.ID).Total("90").Installments(3).Month(2025, time.March).Build()
	series := mustCreate(t, e, db, p)
	settleIndices(t, e, db, series.Purchase.ID, 1, 2, 3)

	total := dec("120")
	_, err := e.EditPurchase(ctx, db.OwnerID, series.Purchase.ID, PurchasePatch{TotalAmount: &total})
	assert.ErrorIs(t, err, common.ErrValidation)

	start := 2
	_, err = e.EditPurchase(ctx, db.OwnerID, series.Purchase.ID, PurchasePatch{StartIndex: &start})
	assert.ErrorIs(t, err, common.ErrValidation)

	for _, inst := range db.MustInstallments(series.Purchase.ID) {
		assert.True(t, inst.Value.Equal(dec("30")))
	}

	description := "Renamed"
	edited, err := e.EditPurchase(ctx, db.OwnerID, series.Purchase.ID, PurchasePatch{Description: &description})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", edited.Purchase.Description)
}

func TestEditPurchase_RejectsValueEditOnRetiredPurchase(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	series := mustCreate(t, e, db, sixInstallments(db))
	require.NoError(t, e.DeletePurchase(ctx, db.OwnerID, series.Purchase.ID, DeleteRetire))

	total := dec("700")
	_, err := e.EditPurchase(ctx, db.OwnerID, series.Purchase.ID, PurchasePatch{TotalAmount: &total})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestEditPurchase_MoveWindowPreservesSettled(t *testing.T) {
	e, db := newTestEngine(t)
	series := mustCreate(t, e, db, sixInstallments(db))
	settleIndices(t, e, db, series.Purchase.ID, 1, 2)
	before := byIndex(db.MustInstallments(series.Purchase.ID))

	newMonth := month(2025, time.April)
	edited, err := e.EditPurchase(context.Background(), db.OwnerID, series.Purchase.ID, PurchasePatch{StatementMonth: &newMonth})
	require.NoError(t, err)
	assert.Equal(t, newMonth, edited.Purchase.StatementMonth)

	after := byIndex(edited.Installments)
	require.Len(t, after, 6)
	assert.Len(t, edited.Installments, 6, "indices must stay unique")

	for _, k := range []int{1, 2} {
		assert.Equal(t, before[k].ID, after[k].ID, "settled installment %d must survive", k)
		assert.Equal(t, before[k].StatementMonth, after[k].StatementMonth)
		assert.True(t, after[k].Settled)
	}
	for k := 3; k <= 6; k++ {
		assert.NotEqual(t, before[k].ID, after[k].ID, "unsettled installment %d is regenerated", k)
		assert.Equal(t, model.AddMonths(newMonth, k-1), after[k].StatementMonth)
		assert.False(t, after[k].Settled)
	}
}

func TestEditPurchase_GrowCount(t *testing.T) {
	e, db := newTestEngine(t)
	series := mustCreate(t, e, db, sixInstallments(db))
	settleIndices(t, e, db, series.Purchase.ID, 1, 2)

	count := 8
	edited, err := e.EditPurchase(context.Background(), db.OwnerID, series.Purchase.ID, PurchasePatch{InstallmentCount: &count})
	require.NoError(t, err)

	after := byIndex(edited.Installments)
	require.Len(t, after, 8)
	assert.True(t, after[1].Value.Equal(dec("100")))
	assert.True(t, after[2].Value.Equal(dec("100")))
	for k := 3; k <= 8; k++ {
		assert.True(t, after[k].Value.Equal(dec("75")), "installment %d", k)
		assert.Equal(t, 8, after[k].TotalInstallments)
	}
}

func TestEditPurchase_ShrinkBelowSettledIsRejected(t *testing.T) {
	e, db := newTestEngine(t)
	series := mustCreate(t, e, db, sixInstallments(db))
	settleIndices(t, e, db, series.Purchase.ID, 5)

	count := 4
	_, err := e.EditPurchase(context.Background(), db.OwnerID, series.Purchase.ID, PurchasePatch{InstallmentCount: &count})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Len(t, db.MustInstallments(series.Purchase.ID), 6)
}

func TestEditPurchase_StartIndexChange(t *testing.T) {
	e, db := newTestEngine(t)
	series := mustCreate(t, e, db, sixInstallments(db))

	start := 3
	edited, err := e.EditPurchase(context.Background(), db.OwnerID, series.Purchase.ID, PurchasePatch{StartIndex: &start})
	require.NoError(t, err)

	require.Len(t, edited.Installments, 4)
	assert.Equal(t, 3, edited.Installments[0].Index)
	assert.Equal(t, month(2025, time.March), edited.Installments[0].StatementMonth)
}

func TestEditPurchase_NotFound(t *testing.T) {
	e, db := newTestEngine(t)
	description := "x"
	_, err := e.EditPurchase(context.Background(), db.OwnerID, "missing", PurchasePatch{Description: &description})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReverseInstallment_ThisAndFuture(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	original := mustCreate(t, e, db, phonePurchase(db))
	third := byIndex(db.MustInstallments(original.Purchase.ID))[3]

	reversal, err := e.ReverseInstallment(ctx, db.OwnerID, third.ID, ReverseThisAndFuture)
	require.NoError(t, err)

	assert.Equal(t, model.KindReversal, reversal.Purchase.Kind)
	assert.Equal(t, 10, reversal.Purchase.InstallmentCount)
	require.NotNil(t, reversal.Purchase.ReversedPurchaseID)
	assert.Equal(t, original.Purchase.ID, *reversal.Purchase.ReversedPurchaseID)
	assert.True(t, reversal.Purchase.TotalAmount.Equal(dec("1000")))

	originals := byIndex(db.MustInstallments(original.Purchase.ID))
	stored := db.MustInstallments(reversal.Purchase.ID)
	require.Len(t, stored, 10)
	for i, inst := range stored {
		assert.Equal(t, i+3, inst.Index)
		assert.True(t, inst.Value.Equal(dec("-100")), "installment %d value %s", inst.Index, inst.Value)
		assert.Equal(t, originals[inst.Index].StatementMonth, inst.StatementMonth)
	}

	details, err := e.DescribePurchase(ctx, db.OwnerID, original.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateReversed, details.State)
	assert.Len(t, details.Reversals, 1)
}

func TestReverseInstallment_ThisAndFutureSkipsSettled(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	original := mustCreate(t, e, db, phonePurchase(db))
	settleIndices(t, e, db, original.Purchase.ID, 3, 5)
	third := byIndex(db.MustInstallments(original.Purchase.ID))[3]

	reversal, err := e.ReverseInstallment(ctx, db.OwnerID, third.ID, ReverseThisAndFuture)
	require.NoError(t, err)

	assert.Equal(t, 9, reversal.Purchase.InstallmentCount)
	assert.True(t, reversal.Purchase.TotalAmount.Equal(dec("900")))
	reversedIndices := byIndex(db.MustInstallments(reversal.Purchase.ID))
	assert.Contains(t, reversedIndices, 3, "the chosen installment is reversed even when settled")
	assert.NotContains(t, reversedIndices, 5)
	assert.Contains(t, reversedIndices, 12)
}

func TestReverseInstallment_SignAlwaysNegative(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	credit, err := e.CreateAdjustment(ctx, db.OwnerID, AdjustmentInput{
		CardID: db.Card.ID, Amount: dec("40"), Type: model.AdjustmentCredit, StatementMonth: month(2025, time.June),
	})
	require.NoError(t, err)
	_, err = e.ReverseInstallment(ctx, db.OwnerID, credit.Installments[0].ID, ReverseThisInstallment)
	assert.ErrorIs(t, err, common.ErrValidation, "only amortizing series can be reversed")

	recurring := testutil.NewPurchase(db.OwnerID, db.Card.ID).
		Described("Streaming").Total("45").Installments(3).Kind(model.KindRecurring).Month(2025, time.June).Build()
	series := mustCreate(t, e, db, recurring)

	reversal, err := e.ReverseInstallment(ctx, db.OwnerID, series.Installments[1].ID, ReverseThisInstallment)
	require.NoError(t, err)
	require.Len(t, reversal.Installments, 1)
	assert.Equal(t, 1, reversal.Purchase.InstallmentCount)
	assert.True(t, reversal.Installments[0].Value.IsNegative())
	assert.Equal(t, 2, reversal.Installments[0].Index)
}

func TestReverseInstallment_Validation(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	original := mustCreate(t, e, db, phonePurchase(db))
	installments := byIndex(db.MustInstallments(original.Purchase.ID))

	_, err := e.ReverseInstallment(ctx, db.OwnerID, installments[3].ID, "")
	assert.ErrorIs(t, err, common.ErrValidation, "scope must be explicit")

	_, err = e.ReverseInstallment(ctx, db.OwnerID, "missing", ReverseThisInstallment)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.ReverseInstallment(ctx, "intruder", installments[3].ID, ReverseThisInstallment)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.ReverseInstallment(ctx, db.OwnerID, installments[5].ID, ReverseThisAndFuture)
	require.NoError(t, err)

	_, err = e.ReverseInstallment(ctx, db.OwnerID, installments[3].ID, ReverseThisAndFuture)
	assert.ErrorIs(t, err, common.ErrValidation, "overlapping reversal")

	_, err = e.ReverseInstallment(ctx, db.OwnerID, installments[3].ID, ReverseThisInstallment)
	assert.NoError(t, err, "installment 3 is not covered yet")
}

func TestCreateAdjustment(t *testing.T) {
	tests := []struct {
		typ  model.AdjustmentType
		want string
	}{
		{typ: model.AdjustmentCredit, want: "-50"},
		{typ: model.AdjustmentDebit, want: "50"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			e, db := newTestEngine(t)
			series, err := e.CreateAdjustment(context.Background(), db.OwnerID, AdjustmentInput{
				CardID: db.Card.ID,
				Amount: dec("50"),
				Type:   tt.typ,
				Date:   time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC),
			})
			require.NoError(t, err)

			assert.Equal(t, model.KindAdjustment, series.Purchase.Kind)
			assert.Equal(t, 1, series.Purchase.InstallmentCount)
			assert.Equal(t, "2025-07", model.FormatMonth(series.Purchase.StatementMonth), "resolved from the date")

			stored := db.MustInstallments(series.Purchase.ID)
			require.Len(t, stored, 1)
			assert.True(t, stored[0].Value.Equal(dec(tt.want)))
		})
	}
}

func TestCreateAdjustment_Validation(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateAdjustment(ctx, db.OwnerID, AdjustmentInput{CardID: db.Card.ID, Amount: dec("10"), Type: "refund"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.CreateAdjustment(ctx, db.OwnerID, AdjustmentInput{CardID: db.Card.ID, Amount: dec("0"), Type: model.AdjustmentDebit})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.CreateAdjustment(ctx, db.OwnerID, AdjustmentInput{CardID: "nope", Amount: dec("10"), Type: model.AdjustmentDebit})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSetInstallmentSettled_NoCascade(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	series := mustCreate(t, e, db, sixInstallments(db))
	installments := byIndex(db.MustInstallments(series.Purchase.ID))

	require.NoError(t, e.SetInstallmentSettled(ctx, db.OwnerID, installments[2].ID, true))
	after := byIndex(db.MustInstallments(series.Purchase.ID))
	for k, inst := range after {
		assert.Equal(t, k == 2, inst.Settled, "installment %d", k)
	}

	require.NoError(t, e.SetInstallmentSettled(ctx, db.OwnerID, installments[2].ID, false))
	assert.False(t, byIndex(db.MustInstallments(series.Purchase.ID))[2].Settled)

	err := e.SetInstallmentSettled(ctx, "intruder", installments[2].ID, true)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSettleStatement(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	sofa := mustCreate(t, e, db, sixInstallments(db))
	phone := mustCreate(t, e, db, phonePurchase(db))

	ids, err := e.SettleStatement(ctx, db.OwnerID, db.Card.ID, month(2025, time.April))
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	assert.True(t, byIndex(db.MustInstallments(sofa.Purchase.ID))[2].Settled)
	assert.True(t, byIndex(db.MustInstallments(phone.Purchase.ID))[2].Settled)
	assert.False(t, byIndex(db.MustInstallments(phone.Purchase.ID))[3].Settled)

	again, err := e.SettleStatement(ctx, db.OwnerID, db.Card.ID, month(2025, time.April))
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, e.UnsettleInstallments(ctx, db.OwnerID, ids))
	assert.False(t, byIndex(db.MustInstallments(sofa.Purchase.ID))[2].Settled)

	err = e.UnsettleInstallments(ctx, db.OwnerID, []string{ids[0], "missing"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.SettleStatement(ctx, db.OwnerID, "missing-card", month(2025, time.April))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeletePurchase(t *testing.T) {
	t.Run("scope is required", func(t *testing.T) {
		e, db := newTestEngine(t)
		series := mustCreate(t, e, db, sixInstallments(db))
		err := e.DeletePurchase(context.Background(), db.OwnerID, series.Purchase.ID, "")
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("retire keeps rows inactive", func(t *testing.T) {
		e, db := newTestEngine(t)
		series := mustCreate(t, e, db, sixInstallments(db))
		require.NoError(t, e.DeletePurchase(context.Background(), db.OwnerID, series.Purchase.ID, DeleteRetire))

		p := db.MustPurchase(series.Purchase.ID)
		assert.False(t, p.IsActive)
		for _, inst := range db.MustInstallments(series.Purchase.ID) {
			assert.False(t, inst.IsActive)
		}

		details, err := e.DescribePurchase(context.Background(), db.OwnerID, series.Purchase.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StateRetired, details.State)
	})

	t.Run("purge removes purchase and linked reversals", func(t *testing.T) {
		e, db := newTestEngine(t)
		ctx := context.Background()
		series := mustCreate(t, e, db, sixInstallments(db))
		reversal, err := e.ReverseInstallment(ctx, db.OwnerID, series.Installments[3].ID, ReverseThisAndFuture)
		require.NoError(t, err)

		require.NoError(t, e.DeletePurchase(ctx, db.OwnerID, series.Purchase.ID, DeletePurge))

		_, err = db.Storage.GetPurchase(ctx, db.OwnerID, series.Purchase.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
		_, err = db.Storage.GetPurchase(ctx, db.OwnerID, reversal.Purchase.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.Zero(t, countInstallments(t, db))
	})

	t.Run("purge refuses settled history", func(t *testing.T) {
		e, db := newTestEngine(t)
		series := mustCreate(t, e, db, sixInstallments(db))
		settleIndices(t, e, db, series.Purchase.ID, 1)

		err := e.DeletePurchase(context.Background(), db.OwnerID, series.Purchase.ID, DeletePurge)
		assert.ErrorIs(t, err, common.ErrValidation)
		assert.Len(t, db.MustInstallments(series.Purchase.ID), 6)
	})

	t.Run("unknown purchase", func(t *testing.T) {
		e, db := newTestEngine(t)
		err := e.DeletePurchase(context.Background(), db.OwnerID, "missing", DeleteRetire)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestDescribePurchase_States(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	series := mustCreate(t, e, db, testutil.NewPurchase(db.OwnerID, db.Card.ID).Installments(2).Month(2025, time.May).Build())

	states := []model.PurchaseState{}
	details, err := e.DescribePurchase(ctx, db.OwnerID, series.Purchase.ID)
	require.NoError(t, err)
	states = append(states, details.State)

	settleIndices(t, e, db, series.Purchase.ID, 1)
	details, err = e.DescribePurchase(ctx, db.OwnerID, series.Purchase.ID)
	require.NoError(t, err)
	states = append(states, details.State)

	settleIndices(t, e, db, series.Purchase.ID, 2)
	details, err = e.DescribePurchase(ctx, db.OwnerID, series.Purchase.ID)
	require.NoError(t, err)
	states = append(states, details.State)

	assert.Equal(t, []model.PurchaseState{model.StateActive, model.StatePartiallySettled, model.StateClosed}, states)

	purchases, err := db.Storage.GetPurchases(ctx, service.PurchaseFilter{OwnerID: db.OwnerID})
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}
