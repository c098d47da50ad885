package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/cardcycle/internal/model"
)

const cardColumns = `id, owner_id, name, closing_day, due_day, is_active, created_at`

// CreateCard inserts a card, assigning an id when none is set.
func (s *SQLiteStorage) CreateCard(ctx context.Context, card *model.Card) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if card == nil {
		return fmt.Errorf("%w: card", ErrNilParameter)
	}
	if err := card.Validate(); err != nil {
		return err
	}

	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	card.IsActive = true

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		card.ID, card.OwnerID, card.Name, card.ClosingDay, card.DueDay, card.IsActive, card.CreatedAt,
	)
	return translateError(err, "failed to insert card %s", card.ID)
}

// GetCard returns an owner's card.
func (s *SQLiteStorage) GetCard(ctx context.Context, ownerID, id string) (*model.Card, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var card model.Card
	err := s.q.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(
		&card.ID, &card.OwnerID, &card.Name, &card.ClosingDay, &card.DueDay, &card.IsActive, &card.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err, "card %s", id)
	}
	return &card, nil
}

// GetCards returns an owner's active cards ordered by name.
func (s *SQLiteStorage) GetCards(ctx context.Context, ownerID string) ([]model.Card, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE owner_id = ? AND is_active = 1
		ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cards []model.Card
	for rows.Next() {
		var card model.Card
		if err := rows.Scan(&card.ID, &card.OwnerID, &card.Name, &card.ClosingDay, &card.DueDay, &card.IsActive, &card.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}
