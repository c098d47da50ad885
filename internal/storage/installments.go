package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

const installmentSelect = `
	SELECT i.id, i.purchase_id, i.installment_index, i.total_installments, i.value,
	       i.statement_month, i.settled, i.recurrence, i.is_active, i.created_at,
	       p.description, p.purchase_date
	FROM installments i
	JOIN purchases p ON p.id = i.purchase_id`

// InsertInstallment persists one installment. A second installment with the
// same (purchase, index) pair fails with common.ErrDuplicateEntry.
func (s *SQLiteStorage) InsertInstallment(ctx context.Context, inst *model.Installment) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInstallment(inst); err != nil {
		return err
	}

	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	if inst.Recurrence == "" {
		inst.Recurrence = model.RecurrenceNormal
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO installments (
			id, purchase_id, installment_index, total_installments, value,
			statement_month, settled, recurrence, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.PurchaseID,
		inst.Index,
		inst.TotalInstallments,
		inst.Value,
		model.MonthKey(inst.StatementMonth),
		inst.Settled,
		string(inst.Recurrence),
		inst.IsActive,
		inst.CreatedAt,
	)
	return translateError(err, "failed to insert installment %d of purchase %s", inst.Index, inst.PurchaseID)
}

// GetInstallment returns an installment whose purchase belongs to ownerID.
func (s *SQLiteStorage) GetInstallment(ctx context.Context, ownerID, id string) (*model.Installment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.q.QueryRowContext(ctx, installmentSelect+` WHERE i.id = ? AND p.owner_id = ?`, id, ownerID)
	inst, err := scanInstallment(row)
	if err != nil {
		return nil, translateError(err, "installment %s", id)
	}
	return inst, nil
}

// GetInstallments returns installments matching filter, oldest purchase first.
func (s *SQLiteStorage) GetInstallments(ctx context.Context, filter service.InstallmentFilter) ([]model.Installment, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(filter.OwnerID, "ownerID"); err != nil {
		return nil, err
	}

	query := installmentSelect + ` WHERE p.owner_id = ?`
	args := []any{filter.OwnerID}

	if filter.PurchaseID != "" {
		query += " AND i.purchase_id = ?"
		args = append(args, filter.PurchaseID)
	}
	if filter.CardID != "" {
		query += " AND p.card_id = ?"
		args = append(args, filter.CardID)
	}
	if filter.StatementMonth != nil {
		query += " AND i.statement_month = ?"
		args = append(args, model.MonthKey(*filter.StatementMonth))
	}
	if filter.Settled != nil {
		query += " AND i.settled = ?"
		args = append(args, *filter.Settled)
	}
	if filter.ActiveOnly {
		query += " AND i.is_active = 1"
	}
	if len(filter.IDs) > 0 {
		query += " AND i.id IN (" + placeholders(len(filter.IDs)) + ")"
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY p.purchase_date ASC, p.created_at ASC, i.purchase_id ASC, i.installment_index ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var installments []model.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		installments = append(installments, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installments: %w", err)
	}
	return installments, nil
}

// CountInstallments returns how many installments exist for a purchase,
// settled or not.
func (s *SQLiteStorage) CountInstallments(ctx context.Context, purchaseID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM installments WHERE purchase_id = ?`, purchaseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count installments of purchase %s: %w", purchaseID, err)
	}
	return count, nil
}

// UpdateUnsettledInstallmentValues sets value on every active, unsettled
// installment of a purchase. Settled installments keep their historical value.
func (s *SQLiteStorage) UpdateUnsettledInstallmentValues(ctx context.Context, purchaseID string, value decimal.Decimal) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.q.ExecContext(ctx, `
		UPDATE installments SET value = ?
		WHERE purchase_id = ? AND settled = 0 AND is_active = 1`, value, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("failed to update installment values of purchase %s: %w", purchaseID, err)
	}
	return result.RowsAffected()
}

// SetInstallmentsSettled sets the settled flag on the given installments.
func (s *SQLiteStorage) SetInstallmentsSettled(ctx context.Context, ids []string, settled bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, settled)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE installments SET settled = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to update settled flag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if int(n) != len(ids) {
		return common.NotFoundf("%d of %d installments", len(ids)-int(n), len(ids))
	}
	return nil
}

// DeleteUnsettledInstallments removes every unsettled installment of a purchase.
func (s *SQLiteStorage) DeleteUnsettledInstallments(ctx context.Context, purchaseID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.q.ExecContext(ctx,
		`DELETE FROM installments WHERE purchase_id = ? AND settled = 0`, purchaseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unsettled installments of purchase %s: %w", purchaseID, err)
	}
	return result.RowsAffected()
}

// DeleteInstallment removes a single installment.
func (s *SQLiteStorage) DeleteInstallment(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM installments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete installment %s: %w", id, err)
	}
	return requireAffected(result, "installment %s", id)
}

func scanInstallment(row rowScanner) (*model.Installment, error) {
	var (
		inst           model.Installment
		statementMonth string
		recurrence     string
	)

	err := row.Scan(
		&inst.ID,
		&inst.PurchaseID,
		&inst.Index,
		&inst.TotalInstallments,
		&inst.Value,
		&statementMonth,
		&inst.Settled,
		&recurrence,
		&inst.IsActive,
		&inst.CreatedAt,
		&inst.Description,
		&inst.PurchaseDate,
	)
	if err != nil {
		return nil, err
	}

	month, err := model.ParseMonth(statementMonth)
	if err != nil {
		return nil, fmt.Errorf("%w: installment %s: %v", common.ErrDatabaseCorrupted, inst.ID, err)
	}
	inst.StatementMonth = month
	inst.Recurrence = model.Recurrence(recurrence)
	return &inst, nil
}
