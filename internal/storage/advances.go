package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
)

const advanceColumns = `id, owner_id, card_id, statement_month, amount, adjustment_purchase_id,
	adjustment_installment_id, settled_installment_ids, created_at`

// SaveAdvance persists an advance receipt.
func (s *SQLiteStorage) SaveAdvance(ctx context.Context, a *model.Advance) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAdvance(a); err != nil {
		return err
	}

	ids := a.SettledInstallmentIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode settled installment ids: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO advances (`+advanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.OwnerID,
		a.CardID,
		model.MonthKey(a.StatementMonth),
		a.Amount,
		a.AdjustmentPurchaseID,
		a.AdjustmentInstallmentID,
		string(idsJSON),
		a.CreatedAt,
	)
	return translateError(err, "failed to insert advance %s", a.ID)
}

// GetAdvance returns an owner's advance receipt.
func (s *SQLiteStorage) GetAdvance(ctx context.Context, ownerID, id string) (*model.Advance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `
		SELECT `+advanceColumns+`
		FROM advances
		WHERE id = ? AND owner_id = ?`, id, ownerID)
	a, err := scanAdvance(row)
	if err != nil {
		return nil, translateError(err, "advance %s", id)
	}
	return a, nil
}

// GetAdvances lists an owner's advances on a card, newest first.
func (s *SQLiteStorage) GetAdvances(ctx context.Context, ownerID, cardID string) ([]model.Advance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+advanceColumns+`
		FROM advances
		WHERE owner_id = ? AND card_id = ?
		ORDER BY created_at DESC`, ownerID, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query advances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var advances []model.Advance
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan advance: %w", err)
		}
		advances = append(advances, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating advances: %w", err)
	}
	return advances, nil
}

// DeleteAdvance removes an advance receipt.
func (s *SQLiteStorage) DeleteAdvance(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM advances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete advance %s: %w", id, err)
	}
	return requireAffected(result, "advance %s", id)
}

func scanAdvance(row rowScanner) (*model.Advance, error) {
	var (
		a              model.Advance
		statementMonth string
		idsJSON        string
	)

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.CardID,
		&statementMonth,
		&a.Amount,
		&a.AdjustmentPurchaseID,
		&a.AdjustmentInstallmentID,
		&idsJSON,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.StatementMonth, err = model.ParseMonth(statementMonth); err != nil {
		return nil, fmt.Errorf("%w: advance %s: %v", common.ErrDatabaseCorrupted, a.ID, err)
	}
	if err := json.Unmarshal([]byte(idsJSON), &a.SettledInstallmentIDs); err != nil {
		return nil, fmt.Errorf("%w: advance %s settled ids: %v", common.ErrDatabaseCorrupted, a.ID, err)
	}
	return &a, nil
}
