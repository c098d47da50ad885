package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
)

// GetCategories returns all active categories of an owner.
func (s *SQLiteStorage) GetCategories(ctx context.Context, ownerID string) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, owner_id, name, description, created_at, is_active
		FROM categories
		WHERE owner_id = ? AND is_active = 1
		ORDER BY name`

	rows, err := s.q.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.OwnerID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "owner_id", ownerID, "count", len(categories))
	return categories, nil
}

// GetCategoryByID returns an owner's category by id.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, ownerID string, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, owner_id, name, description, created_at, is_active
		FROM categories
		WHERE id = ? AND owner_id = ? AND is_active = 1`

	var cat model.Category
	err := s.q.QueryRowContext(ctx, query, id, ownerID).Scan(
		&cat.ID, &cat.OwnerID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.IsActive,
	)
	if err != nil {
		return nil, translateError(err, "category %d", id)
	}

	return &cat, nil
}

// CreateCategory creates a new category, reactivating a retired one with the
// same name if it exists.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, ownerID, name, description string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewValidationError("name", "category name cannot be empty")
	}

	// Check if category already exists (including inactive ones)
	existingQuery := `
		SELECT id, owner_id, name, description, created_at, is_active
		FROM categories
		WHERE owner_id = ? AND name = ?`

	var existing model.Category
	err := s.q.QueryRowContext(ctx, existingQuery, ownerID, name).Scan(
		&existing.ID, &existing.OwnerID, &existing.Name, &existing.Description, &existing.CreatedAt, &existing.IsActive,
	)

	if err == nil {
		// Category exists
		if !existing.IsActive {
			// Reactivate it
			updateQuery := `UPDATE categories SET is_active = 1, description = ? WHERE id = ?`
			if _, err := s.q.ExecContext(ctx, updateQuery, description, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to reactivate category: %w", err)
			}
			existing.IsActive = true
			existing.Description = description
			slog.Info("reactivated existing category", "name", name)
		}
		return &existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check existing category: %w", err)
	}

	insertQuery := `
		INSERT INTO categories (owner_id, name, description, created_at, is_active)
		VALUES (?, ?, ?, ?, 1)`

	now := time.Now().UTC()
	result, err := s.q.ExecContext(ctx, insertQuery, ownerID, name, description, now)
	if err != nil {
		return nil, translateError(err, "failed to create category")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	slog.Info("created new category", "name", name, "id", id)
	return &model.Category{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		IsActive:    true,
	}, nil
}
