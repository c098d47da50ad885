package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
	"github.com/Veraticus/cardcycle/internal/testutil"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		skip        map[int]bool
		name        string
		wantIndices []int
		count       int
		start       int
	}{
		{name: "full series", count: 12, start: 1, wantIndices: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{name: "series in progress", count: 6, start: 4, wantIndices: []int{4, 5, 6}},
		{name: "single", count: 1, start: 1, wantIndices: []int{1}},
		{name: "last installment only", count: 10, start: 10, wantIndices: []int{10}},
		{name: "skipping settled", count: 5, start: 1, skip: map[int]bool{1: true, 3: true}, wantIndices: []int{2, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &model.Purchase{
				ID:               "p1",
				TotalAmount:      dec("1000"),
				InstallmentCount: tt.count,
				StartIndex:       tt.start,
				StatementMonth:   month(2025, time.March),
				Kind:             model.KindInstallment,
			}
			installments := Expand(p, p.InstallmentValue(), tt.skip)

			indices := make([]int, 0, len(installments))
			for _, inst := range installments {
				indices = append(indices, inst.Index)
				assert.Equal(t, "p1", inst.PurchaseID)
				assert.Equal(t, tt.count, inst.TotalInstallments)
				assert.False(t, inst.Settled)
				assert.True(t, inst.IsActive)
				// Month stride is anchored at the start index.
				assert.Equal(t, model.AddMonths(p.StatementMonth, inst.Index-tt.start), inst.StatementMonth)
			}
			assert.Equal(t, tt.wantIndices, indices)
		})
	}
}

func TestExpand_RecurringUsesFixedRecurrence(t *testing.T) {
	p := &model.Purchase{
		ID:               "p1",
		TotalAmount:      dec("30"),
		InstallmentCount: 3,
		StartIndex:       1,
		StatementMonth:   month(2025, time.January),
		Kind:             model.KindRecurring,
	}
	for _, inst := range Expand(p, p.InstallmentValue(), nil) {
		assert.Equal(t, model.RecurrenceFixed, inst.Recurrence)
	}
}

func TestCreatePurchase_PhoneScenario(t *testing.T) {
	e, db := newTestEngine(t)

	series := mustCreate(t, e, db, phonePurchase(db))
	assert.Equal(t, model.KindInstallment, series.Purchase.Kind)
	assert.True(t, series.Purchase.IsActive)

	installments := db.MustInstallments(series.Purchase.ID)
	require.Len(t, installments, 12)
	for i, inst := range installments {
		assert.Equal(t, i+1, inst.Index)
		assert.True(t, inst.Value.Equal(dec("100.00")), "installment %d value %s", inst.Index, inst.Value)
		assert.Equal(t, model.AddMonths(month(2025, time.March), i), inst.StatementMonth)
	}
	assert.Equal(t, "2026-02", model.FormatMonth(installments[11].StatementMonth))
}

func TestCreatePurchase_RoundingBound(t *testing.T) {
	tests := []struct {
		total string
		count int
	}{
		{total: "100.00", count: 3},
		{total: "1000.00", count: 7},
		{total: "0.05", count: 4},
		{total: "1999.99", count: 12},
	}

	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			e, db := newTestEngine(t)
			p := testutil.NewPurchase(db.OwnerID, db.Card.ID).Total(tt.total).Installments(tt.count).Build()
			series := mustCreate(t, e, db, p)

			sum := dec("0")
			for _, inst := range db.MustInstallments(series.Purchase.ID) {
				sum = sum.Add(inst.Value)
			}
			drift := sum.Sub(dec(tt.total)).Abs()
			bound := model.Cent.Mul(decimal.NewFromInt(int64(tt.count)))
			assert.True(t, drift.LessThanOrEqual(bound), "drift %s exceeds %s", drift, bound)
		})
	}
}

func TestCreatePurchase_ResolvesStatementMonth(t *testing.T) {
	tests := []struct {
		name string
		day  int
		want string
	}{
		{name: "before closing day", day: 3, want: "2025-05"},
		{name: "on closing day", day: 10, want: "2025-05"},
		{name: "after closing day", day: 11, want: "2025-06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db := newTestEngine(t)
			p := testutil.NewPurchase(db.OwnerID, db.Card.ID).On(2025, time.May, tt.day).Build()
			series := mustCreate(t, e, db, p)
			assert.Equal(t, tt.want, model.FormatMonth(series.Purchase.StatementMonth))
		})
	}
}

func TestCreatePurchase_CategorisedOnLateClosingCard(t *testing.T) {
	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
		OwnerID:    "owner-late",
		ClosingDay: 31,
		Categories: []string{"Groceries"},
	})
	e := newEngineOn(db.Storage)

	categories, err := db.Storage.GetCategories(context.Background(), db.OwnerID)
	require.NoError(t, err)
	require.Len(t, categories, 1)

	p := testutil.NewPurchase(db.OwnerID, db.Card.ID).On(2025, time.February, 28).Build()
	p.CategoryID = &categories[0].ID
	series := mustCreate(t, e, db, p)

	// Closing day 31 clamps to February 28, so the purchase stays in February.
	assert.Equal(t, "2025-02", model.FormatMonth(series.Purchase.StatementMonth))
	require.NotNil(t, db.MustPurchase(series.Purchase.ID).CategoryID)
	assert.Equal(t, categories[0].ID, *db.MustPurchase(series.Purchase.ID).CategoryID)
}

func TestCreatePurchase_StartIndexOverride(t *testing.T) {
	e, db := newTestEngine(t)
	p := testutil.NewPurchase(db.OwnerID, db.Card.ID).
		Described("TV - 3/6").
		Total("600").
		Installments(6).
		StartingAt(3).
		Month(2025, time.May).
		Build()

	series := mustCreate(t, e, db, p)
	installments := db.MustInstallments(series.Purchase.ID)
	require.Len(t, installments, 4)
	assert.Equal(t, 3, installments[0].Index)
	assert.Equal(t, "2025-05", model.FormatMonth(installments[0].StatementMonth))
	assert.Equal(t, "2025-08", model.FormatMonth(installments[3].StatementMonth))
}

func TestCreatePurchase_Validation(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	otherCard := &model.Card{OwnerID: "someone-else", Name: "Theirs", ClosingDay: 5, DueDay: 15}
	require.NoError(t, db.Storage.CreateCard(ctx, otherCard))

	tests := []struct {
		mutate  func(*model.Purchase)
		wantErr error
		name    string
	}{
		{name: "start beyond count", mutate: func(p *model.Purchase) { p.InstallmentCount = 3; p.StartIndex = 4 }, wantErr: common.ErrValidation},
		{name: "zero total", mutate: func(p *model.Purchase) { p.TotalAmount = dec("0") }, wantErr: common.ErrValidation},
		{name: "negative total", mutate: func(p *model.Purchase) { p.TotalAmount = dec("-10") }, wantErr: common.ErrValidation},
		{name: "missing description", mutate: func(p *model.Purchase) { p.Description = "  " }, wantErr: common.ErrValidation},
		{name: "adjustment kind", mutate: func(p *model.Purchase) { p.Kind = model.KindAdjustment }, wantErr: common.ErrValidation},
		{name: "reversal kind", mutate: func(p *model.Purchase) { p.Kind = model.KindReversal }, wantErr: common.ErrValidation},
		{name: "unknown card", mutate: func(p *model.Purchase) { p.CardID = "missing" }, wantErr: common.ErrNotFound},
		{name: "card of another owner", mutate: func(p *model.Purchase) { p.CardID = otherCard.ID }, wantErr: common.ErrNotFound},
		{name: "unknown category", mutate: func(p *model.Purchase) { id := int64(99); p.CategoryID = &id }, wantErr: common.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewPurchase(db.OwnerID, db.Card.ID).Installments(3).Build()
			tt.mutate(&p)
			_, err := e.CreatePurchase(ctx, db.OwnerID, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	purchases, err := db.Storage.GetPurchases(ctx, service.PurchaseFilter{OwnerID: db.OwnerID})
	require.NoError(t, err)
	assert.Empty(t, purchases, "rejected input must not write anything")

	_, err = e.CreatePurchase(ctx, "", testutil.NewPurchase(db.OwnerID, db.Card.ID).Build())
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreatePurchase_RollsBackOnInsertFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	storeErr := errors.New("disk I/O error")
	store := &storeWithTx{
		Storage: db.Storage,
		wrapTx: func(tx service.Transaction) service.Transaction {
			return &installmentFailingTx{Transaction: tx, fail: map[int]error{2: storeErr}}
		},
	}
	e := newEngineOn(store)
	ctx := context.Background()

	_, err := e.CreatePurchase(ctx, db.OwnerID, phonePurchase(db))
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)

	purchases, err := db.Storage.GetPurchases(ctx, service.PurchaseFilter{OwnerID: db.OwnerID})
	require.NoError(t, err)
	assert.Empty(t, purchases, "no orphaned purchase may remain")
}

func TestCreatePurchase_DuplicateInstallmentIsBenign(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &storeWithTx{
		Storage: db.Storage,
		wrapTx: func(tx service.Transaction) service.Transaction {
			return &installmentFailingTx{Transaction: tx, fail: map[int]error{
				5: common.ErrDuplicateEntry,
			}}
		},
	}
	e := newEngineOn(store)

	series, err := e.CreatePurchase(context.Background(), db.OwnerID, phonePurchase(db))
	require.NoError(t, err)
	assert.Len(t, db.MustInstallments(series.Purchase.ID), 11)
}

func TestCreatePurchase_AllInstallmentsConflictingIsFatal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &storeWithTx{
		Storage: db.Storage,
		wrapTx: func(tx service.Transaction) service.Transaction {
			return &installmentFailingTx{Transaction: tx, fail: map[int]error{1: common.ErrDuplicateEntry}}
		},
	}
	e := newEngineOn(store)

	p := testutil.NewPurchase(db.OwnerID, db.Card.ID).Build()
	_, err := e.CreatePurchase(context.Background(), db.OwnerID, p)
	require.Error(t, err)

	purchases, err := db.Storage.GetPurchases(context.Background(), service.PurchaseFilter{OwnerID: db.OwnerID})
	require.NoError(t, err)
	assert.Empty(t, purchases)
}
