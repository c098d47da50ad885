// Package engine implements the installment and billing-cycle engine: purchase
// expansion, duplicate detection for imports, series mutation, the repair
// job and statement advances.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/billing"
	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

// Engine orchestrates every write to the installment ledger.
type Engine struct {
	storage        service.Storage
	resolver       billing.Resolver
	now            func() time.Time
	fuzzyTolerance decimal.Decimal
}

// Config holds configuration options for the engine.
type Config struct {
	// Now returns the current time. Repair uses it to decide which
	// regenerated installments are historical.
	Now func() time.Time
	// FuzzyTolerance is the largest total difference, exclusive, at which two
	// otherwise matching purchases are still considered duplicates. Zero
	// selects the default.
	FuzzyTolerance decimal.Decimal
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Now:            time.Now,
		FuzzyTolerance: decimal.RequireFromString("0.10"),
	}
}

// New creates an engine with the default configuration.
func New(storage service.Storage, resolver billing.Resolver) *Engine {
	return NewWithConfig(storage, resolver, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(storage service.Storage, resolver billing.Resolver, config Config) *Engine {
	defaults := DefaultConfig()
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if !config.FuzzyTolerance.IsPositive() {
		config.FuzzyTolerance = defaults.FuzzyTolerance
	}
	return &Engine{
		storage:        storage,
		resolver:       resolver,
		now:            config.Now,
		fuzzyTolerance: config.FuzzyTolerance,
	}
}

// Series is a purchase together with its installments.
type Series struct {
	Purchase     *model.Purchase
	Installments []model.Installment
}

// ItemError records the failure of one item in a batch operation.
type ItemError struct {
	Err error
	Key string
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// inTx runs fn inside a store transaction, rolling back on any error.
func (e *Engine) inTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertInstallments writes installments one by one. A uniqueness conflict
// means the row already exists and is skipped; any other error aborts.
func insertInstallments(ctx context.Context, store service.Storage, installments []model.Installment) (int, error) {
	created := 0
	for i := range installments {
		err := store.InsertInstallment(ctx, &installments[i])
		if common.IsBenignConflict(err) {
			slog.Debug("installment already exists",
				"purchase_id", installments[i].PurchaseID,
				"index", installments[i].Index)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to insert installment %d: %w", installments[i].Index, err)
		}
		created++
	}
	return created, nil
}

// loadCard fetches a card, reporting a missing or foreign card as not found.
func (e *Engine) loadCard(ctx context.Context, store service.Storage, ownerID, cardID string) (*model.Card, error) {
	if cardID == "" {
		return nil, common.NewValidationError("card_id", "is required")
	}
	card, err := store.GetCard(ctx, ownerID, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	return card, nil
}

// resolveWindow returns the statement month of a purchase's first created
// installment, asking the resolver when the caller did not pin it.
func (e *Engine) resolveWindow(p *model.Purchase, card *model.Card) (time.Time, error) {
	if !p.StatementMonth.IsZero() {
		return model.MonthOf(p.StatementMonth), nil
	}
	month, err := e.resolver.ResolveStatementMonth(p.PurchaseDate, card.ClosingDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to resolve statement month: %w", err)
	}
	return model.MonthOf(month), nil
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return common.NewValidationError("owner_id", "is required")
	}
	return nil
}
