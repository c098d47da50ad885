package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/cardcycle/internal/common"
)

func TestCheckpointManager_InMemoryRejected(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.NewCheckpointManager()
	assert.ErrorIs(t, err, ErrCheckpointInMemory)
}

func TestCheckpointManager_CreateAndList(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	card := createTestCard(t, store)
	insertSeries(t, store, newTestPurchase(card.ID, 3, "300"))

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-import", "manual snapshot")
	require.NoError(t, err)
	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, 1, info.Cards)
	assert.Equal(t, 1, info.Purchases)
	assert.Equal(t, 3, info.Installments)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.False(t, info.IsAuto)

	_, err = cm.Create(ctx, "before-import", "")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	_, err = cm.Create(ctx, "../escape", "")
	assert.ErrorIs(t, err, ErrInvalidCheckpointID)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "manual snapshot", list[0].Description)
}

func TestCheckpointManager_AutoCheckpointPrunes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	for i := 0; i < maxAutoCheckpoints+2; i++ {
		_, err := cm.create(ctx, "auto-test-"+string(rune('a'+i)), "auto", true)
		require.NoError(t, err)
	}
	require.NoError(t, cm.pruneAutoCheckpoints(ctx))

	list, err := cm.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, maxAutoCheckpoints)
	for _, cp := range list {
		assert.True(t, cp.IsAuto)
	}
}

func TestCheckpointManager_Restore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	card := createTestCard(t, store)

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "empty-ledger", "")
	require.NoError(t, err)

	p := newTestPurchase(card.ID, 2, "20")
	insertSeries(t, store, p)

	require.NoError(t, cm.Restore(ctx, "empty-ledger"))

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	_, err = reopened.GetPurchase(ctx, testOwner, p.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = reopened.GetCard(ctx, testOwner, card.ID)
	assert.NoError(t, err)

	_, err = os.Stat(dbPath + ".restore-backup")
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpointManager_DeleteMissing(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	assert.ErrorIs(t, cm.Delete(context.Background(), "nope"), ErrCheckpointNotFound)
	assert.ErrorIs(t, cm.Restore(context.Background(), "nope"), ErrCheckpointNotFound)
}
