// Package testutil provides shared fixtures for tests that need a migrated
// ledger database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
	"github.com/Veraticus/cardcycle/internal/storage"
)

// DefaultOwner is the owner id used by fixtures unless overridden.
const DefaultOwner = "owner-test"

// TestDB is an in-memory database with a seeded card.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Card    *model.Card
	t       *testing.T
	OwnerID string
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup func(context.Context, service.Storage) error
	OwnerID     string
	Categories  []string
	ClosingDay  int
}

// SetupTestDB creates a migrated in-memory database owned by DefaultOwner
// with one card closing on the 10th. Cleanup is registered on t.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	if opts.OwnerID == "" {
		opts.OwnerID = DefaultOwner
	}
	if opts.ClosingDay == 0 {
		opts.ClosingDay = 10
	}

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	card := &model.Card{
		OwnerID:    opts.OwnerID,
		Name:       "Test Card",
		ClosingDay: opts.ClosingDay,
		DueDay:     20,
	}
	if err := store.CreateCard(ctx, card); err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}

	for _, name := range opts.Categories {
		if _, err := store.CreateCategory(ctx, opts.OwnerID, name, ""); err != nil {
			t.Fatalf("failed to seed category %q: %v", name, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage: store,
		Card:    card,
		OwnerID: opts.OwnerID,
		t:       t,
	}
}

// MustInstallments returns every installment of a purchase, failing the test on error.
func (db *TestDB) MustInstallments(purchaseID string) []model.Installment {
	db.t.Helper()
	installments, err := db.Storage.GetInstallments(context.Background(), service.InstallmentFilter{
		OwnerID:    db.OwnerID,
		PurchaseID: purchaseID,
	})
	if err != nil {
		db.t.Fatalf("failed to load installments of %s: %v", purchaseID, err)
	}
	return installments
}

// MustPurchase loads a purchase, failing the test on error.
func (db *TestDB) MustPurchase(purchaseID string) *model.Purchase {
	db.t.Helper()
	p, err := db.Storage.GetPurchase(context.Background(), db.OwnerID, purchaseID)
	if err != nil {
		db.t.Fatalf("failed to load purchase %s: %v", purchaseID, err)
	}
	return p
}
