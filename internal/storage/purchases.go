package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

const purchaseColumns = `id, owner_id, card_id, description, total_amount, installment_count, start_index,
	purchase_date, statement_month, kind, category_id, payer_ref, reversed_purchase_id,
	is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertPurchase persists a new purchase.
func (s *SQLiteStorage) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePurchase(p); err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OwnerID,
		p.CardID,
		p.Description,
		p.TotalAmount,
		p.InstallmentCount,
		p.StartIndex,
		p.PurchaseDate,
		model.MonthKey(p.StatementMonth),
		string(p.Kind),
		nullInt64(p.CategoryID),
		p.PayerRef,
		nullString(p.ReversedPurchaseID),
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return translateError(err, "failed to insert purchase %s", p.ID)
}

// GetPurchase returns an owner's purchase.
func (s *SQLiteStorage) GetPurchase(ctx context.Context, ownerID, id string) (*model.Purchase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE id = ? AND owner_id = ?`, id, ownerID)

	p, err := scanPurchase(row)
	if err != nil {
		return nil, translateError(err, "purchase %s", id)
	}
	return p, nil
}

// GetPurchases returns purchases matching filter ordered by purchase date.
func (s *SQLiteStorage) GetPurchases(ctx context.Context, filter service.PurchaseFilter) ([]model.Purchase, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(filter.OwnerID, "ownerID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE owner_id = ?`
	args := []any{filter.OwnerID}

	if filter.CardID != "" {
		query += " AND card_id = ?"
		args = append(args, filter.CardID)
	}
	if filter.ReversedPurchaseID != "" {
		query += " AND reversed_purchase_id = ?"
		args = append(args, filter.ReversedPurchaseID)
	}
	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}
	if len(filter.Kinds) > 0 {
		query += " AND kind IN (" + placeholders(len(filter.Kinds)) + ")"
		for _, k := range filter.Kinds {
			args = append(args, string(k))
		}
	}
	query += " ORDER BY purchase_date ASC, created_at ASC, id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var purchases []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}

// UpdatePurchase writes the mutable fields of a purchase.
func (s *SQLiteStorage) UpdatePurchase(ctx context.Context, p *model.Purchase) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePurchase(p); err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	result, err := s.q.ExecContext(ctx, `
		UPDATE purchases
		SET description = ?, total_amount = ?, installment_count = ?, start_index = ?,
		    statement_month = ?, category_id = ?, payer_ref = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		p.Description,
		p.TotalAmount,
		p.InstallmentCount,
		p.StartIndex,
		model.MonthKey(p.StatementMonth),
		nullInt64(p.CategoryID),
		p.PayerRef,
		p.UpdatedAt,
		p.ID,
		p.OwnerID,
	)
	if err != nil {
		return translateError(err, "failed to update purchase %s", p.ID)
	}
	return requireAffected(result, "purchase %s", p.ID)
}

// SetPurchaseActive flips the active flag of a purchase and all of its installments.
func (s *SQLiteStorage) SetPurchaseActive(ctx context.Context, purchaseID string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE purchases SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), purchaseID)
	if err != nil {
		return fmt.Errorf("failed to update purchase %s: %w", purchaseID, err)
	}
	if err := requireAffected(result, "purchase %s", purchaseID); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx,
		`UPDATE installments SET is_active = ? WHERE purchase_id = ?`, active, purchaseID); err != nil {
		return fmt.Errorf("failed to update installments of purchase %s: %w", purchaseID, err)
	}
	return nil
}

// DeletePurchase hard-deletes a purchase together with all of its installments.
func (s *SQLiteStorage) DeletePurchase(ctx context.Context, purchaseID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM installments WHERE purchase_id = ?`, purchaseID); err != nil {
		return fmt.Errorf("failed to delete installments of purchase %s: %w", purchaseID, err)
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, purchaseID)
	if err != nil {
		return fmt.Errorf("failed to delete purchase %s: %w", purchaseID, err)
	}
	return requireAffected(result, "purchase %s", purchaseID)
}

func scanPurchase(row rowScanner) (*model.Purchase, error) {
	var (
		p              model.Purchase
		statementMonth string
		kind           string
		categoryID     sql.NullInt64
		payerRef       sql.NullString
		reversedID     sql.NullString
	)

	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.CardID,
		&p.Description,
		&p.TotalAmount,
		&p.InstallmentCount,
		&p.StartIndex,
		&p.PurchaseDate,
		&statementMonth,
		&kind,
		&categoryID,
		&payerRef,
		&reversedID,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	month, err := model.ParseMonth(statementMonth)
	if err != nil {
		return nil, fmt.Errorf("%w: purchase %s: %v", common.ErrDatabaseCorrupted, p.ID, err)
	}
	p.StatementMonth = month
	p.Kind = model.PurchaseKind(kind)
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	if payerRef.Valid {
		p.PayerRef = payerRef.String
	}
	if reversedID.Valid && strings.TrimSpace(reversedID.String) != "" {
		ref := reversedID.String
		p.ReversedPurchaseID = &ref
	}
	return &p, nil
}

func requireAffected(result sql.Result, format string, args ...any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return common.NotFoundf(format, args...)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
