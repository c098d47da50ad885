package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
	"github.com/Veraticus/cardcycle/internal/storage"
)

func TestRenderTable_PadsColumns(t *testing.T) {
	out := RenderTable([]string{"A", "B"}, [][]string{{"long value", "x"}, {"y"}})

	lines := strings.Split(out, "\n")
	assert.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out, "long value")
	assert.Contains(t, out, "y")
}

func TestFormatStatement(t *testing.T) {
	card := &model.Card{Name: "Visa"}
	summary := &service.StatementSummary{
		StatementMonth: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Installments: []model.Installment{{
			ID:                "inst-1",
			StatementMonth:    time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			Description:       "Phone",
			Index:             2,
			TotalInstallments: 10,
			Value:             decimal.RequireFromString("100"),
		}},
		Charges:     decimal.RequireFromString("100"),
		Credits:     decimal.Zero,
		Total:       decimal.RequireFromString("100"),
		Settled:     decimal.Zero,
		Outstanding: decimal.RequireFromString("100"),
	}

	out := FormatStatement(card, summary)

	for _, want := range []string{"Visa statement 2025-03", "Phone", "2/10", "100.00", "Outstanding"} {
		assert.Contains(t, out, want)
	}
}

func TestFormatImportPreview(t *testing.T) {
	candidates := []engine.Candidate{
		{Key: "a", Purchase: model.Purchase{Description: "New thing", TotalAmount: decimal.NewFromInt(10), StartIndex: 1, InstallmentCount: 1}},
		{Key: "b", Purchase: model.Purchase{Description: "Phone", TotalAmount: decimal.NewFromInt(1000), StartIndex: 3, InstallmentCount: 10}},
		{Key: "c", Purchase: model.Purchase{Description: "Broken"}},
	}
	preview := &engine.ImportPreview{
		Verdicts: []engine.Verdict{
			{Key: "a"},
			{Key: "b", Duplicate: true, Origin: engine.OriginStore, Conflict: &engine.Conflict{ID: "purchase-9"}},
			{Key: "c", Err: errors.New("total_amount: must be positive")},
		},
		ToImport:   1,
		Duplicates: 1,
		Invalid:    1,
	}

	out := FormatImportPreview(preview, candidates)

	assert.Contains(t, out, "new")
	assert.Contains(t, out, "duplicate of purchase-9 (store)")
	assert.Contains(t, out, "invalid: total_amount")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "1 to import, 1 duplicates, 1 invalid")
}

func TestFormatImportResult(t *testing.T) {
	out := FormatImportResult(&engine.ImportResult{
		Succeeded:  2,
		Duplicates: 3,
		Skipped:    2,
		Failed:     1,
		Errors:     []engine.ItemError{{Key: "fitid-7", Err: errors.New("card not found")}},
	})

	assert.Contains(t, out, "Imported 2 purchases")
	assert.Contains(t, out, "Skipped 2 duplicates")
	assert.Contains(t, out, "Forced 1 duplicates")
	assert.Contains(t, out, "fitid-7: card not found")
}

func TestFormatRepairReport(t *testing.T) {
	out := FormatRepairReport(&engine.RepairReport{
		Scanned:  4,
		Repaired: 1,
		Created:  3,
		Failures: []engine.ItemError{{Key: "p-1", Err: errors.New("boom")}},
	})

	assert.Contains(t, out, "Scanned 4 purchases, repaired 1, created 3 installments")
	assert.Contains(t, out, "p-1: boom")
}

func TestFormatCheckpoints(t *testing.T) {
	assert.Contains(t, FormatCheckpoints(nil), "No checkpoints found.")

	out := FormatCheckpoints([]storage.CheckpointInfo{
		{ID: "before-purge", IsAuto: true, FileSize: 2048, Purchases: 3, Installments: 12},
	})
	assert.Contains(t, out, "before-purge")
	assert.Contains(t, out, "auto")
	assert.Contains(t, out, "2.0 KB")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		expected string
		size     int64
	}{
		{expected: "512 B", size: 512},
		{expected: "1.0 KB", size: 1024},
		{expected: "1.5 MB", size: 1536 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatBytes(tt.size))
		})
	}
}
