package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
)

func TestAdvances_RoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	card := createTestCard(t, store)
	advance := &model.Advance{
		ID:                      uuid.NewString(),
		OwnerID:                 testOwner,
		CardID:                  card.ID,
		StatementMonth:          time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:                  decimal.RequireFromString("250.00"),
		AdjustmentPurchaseID:    "adj-purchase",
		AdjustmentInstallmentID: "adj-installment",
		SettledInstallmentIDs:   []string{"a", "b"},
	}
	require.NoError(t, store.SaveAdvance(ctx, advance))

	got, err := store.GetAdvance(ctx, testOwner, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.SettledInstallmentIDs)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "2025-06", model.FormatMonth(got.StatementMonth))

	list, err := store.GetAdvances(ctx, testOwner, card.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetAdvance(ctx, "owner-2", advance.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, store.DeleteAdvance(ctx, advance.ID))
	assert.ErrorIs(t, store.DeleteAdvance(ctx, advance.ID), common.ErrNotFound)
}

func TestAdvances_EmptySettledList(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	card := createTestCard(t, store)
	advance := &model.Advance{
		ID:                      uuid.NewString(),
		OwnerID:                 testOwner,
		CardID:                  card.ID,
		StatementMonth:          time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:                  decimal.NewFromInt(10),
		AdjustmentPurchaseID:    "p",
		AdjustmentInstallmentID: "i",
	}
	require.NoError(t, store.SaveAdvance(ctx, advance))

	got, err := store.GetAdvance(ctx, testOwner, advance.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SettledInstallmentIDs)
}
