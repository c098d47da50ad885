// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/model"
)

// PurchaseFilter defines filtering options for purchase queries.
type PurchaseFilter struct {
	OwnerID            string
	CardID             string
	ReversedPurchaseID string
	Kinds              []model.PurchaseKind
	ActiveOnly         bool
}

// InstallmentFilter defines filtering options for installment queries.
// Results are always scoped to purchases owned by OwnerID.
type InstallmentFilter struct {
	StatementMonth *time.Time
	Settled        *bool
	OwnerID        string
	PurchaseID     string
	CardID         string
	IDs            []string
	ActiveOnly     bool
}

// Storage defines the contract for our persistence layer.
//
// Insert operations return an error wrapping common.ErrDuplicateEntry when,
// and only when, the record violates a uniqueness constraint. Lookups of a
// single record return an error wrapping common.ErrNotFound when the record
// does not exist or belongs to another owner.
type Storage interface {
	// Card operations
	CreateCard(ctx context.Context, card *model.Card) error
	GetCard(ctx context.Context, ownerID, id string) (*model.Card, error)
	GetCards(ctx context.Context, ownerID string) ([]model.Card, error)

	// Category operations
	CreateCategory(ctx context.Context, ownerID, name, description string) (*model.Category, error)
	GetCategoryByID(ctx context.Context, ownerID string, id int64) (*model.Category, error)
	GetCategories(ctx context.Context, ownerID string) ([]model.Category, error)

	// Purchase operations
	InsertPurchase(ctx context.Context, purchase *model.Purchase) error
	GetPurchase(ctx context.Context, ownerID, id string) (*model.Purchase, error)
	GetPurchases(ctx context.Context, filter PurchaseFilter) ([]model.Purchase, error)
	UpdatePurchase(ctx context.Context, purchase *model.Purchase) error
	SetPurchaseActive(ctx context.Context, purchaseID string, active bool) error
	DeletePurchase(ctx context.Context, purchaseID string) error

	// Installment operations
	InsertInstallment(ctx context.Context, installment *model.Installment) error
	GetInstallment(ctx context.Context, ownerID, id string) (*model.Installment, error)
	GetInstallments(ctx context.Context, filter InstallmentFilter) ([]model.Installment, error)
	CountInstallments(ctx context.Context, purchaseID string) (int, error)
	UpdateUnsettledInstallmentValues(ctx context.Context, purchaseID string, value decimal.Decimal) (int64, error)
	SetInstallmentsSettled(ctx context.Context, ids []string, settled bool) error
	DeleteUnsettledInstallments(ctx context.Context, purchaseID string) (int64, error)
	DeleteInstallment(ctx context.Context, id string) error

	// Advance operations
	SaveAdvance(ctx context.Context, advance *model.Advance) error
	GetAdvance(ctx context.Context, ownerID, id string) (*model.Advance, error)
	GetAdvances(ctx context.Context, ownerID, cardID string) ([]model.Advance, error)
	DeleteAdvance(ctx context.Context, id string) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// StatementSummary aggregates one card statement.
type StatementSummary struct {
	StatementMonth time.Time
	CardID         string
	Installments   []model.Installment
	Charges        decimal.Decimal
	Credits        decimal.Decimal
	Total          decimal.Decimal
	Settled        decimal.Decimal
	Outstanding    decimal.Decimal
}
