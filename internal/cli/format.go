package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
	"github.com/Veraticus/cardcycle/internal/storage"
)

const dateLayout = "2006-01-02"

// RenderTable lays out rows under a bold header, padding every column to its
// widest cell.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		rendered := make([]string, len(headers))
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			rendered[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}

	lines := []string{renderRow(headers, TableHeaderStyle)}
	for _, row := range rows {
		lines = append(lines, renderRow(row, lipgloss.NewStyle()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func yesNo(b bool) string {
	if b {
		return SuccessIcon
	}
	return ""
}

// FormatCards renders a card list.
func FormatCards(cards []model.Card) string {
	if len(cards) == 0 {
		return SubtitleStyle.Render("No cards found.")
	}
	rows := make([][]string, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, []string{c.ID, c.Name, strconv.Itoa(c.ClosingDay), strconv.Itoa(c.DueDay)})
	}
	return FormatTitle("Cards") + "\n" + RenderTable([]string{"ID", "Name", "Closing", "Due"}, rows)
}

// FormatCategories renders a category list.
func FormatCategories(categories []model.Category) string {
	if len(categories) == 0 {
		return SubtitleStyle.Render("No categories found.")
	}
	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []string{strconv.FormatInt(c.ID, 10), c.Name, c.Description})
	}
	return RenderTable([]string{"ID", "Name", "Description"}, rows)
}

// FormatPurchases renders a purchase list.
func FormatPurchases(purchases []model.Purchase) string {
	if len(purchases) == 0 {
		return SubtitleStyle.Render("No purchases found.")
	}
	rows := make([][]string, 0, len(purchases))
	for _, p := range purchases {
		window := fmt.Sprintf("%d..%d", p.StartIndex, p.InstallmentCount)
		rows = append(rows, []string{
			p.ID,
			p.PurchaseDate.Format(dateLayout),
			p.Description,
			string(p.Kind),
			window,
			model.FormatAmount(p.TotalAmount),
			yesNo(p.IsActive),
		})
	}
	return RenderTable([]string{"ID", "Date", "Description", "Kind", "Installments", "Total", "Active"}, rows)
}

func installmentRows(installments []model.Installment, withDescription bool) [][]string {
	rows := make([][]string, 0, len(installments))
	for _, inst := range installments {
		row := []string{inst.ID, model.FormatMonth(inst.StatementMonth)}
		if withDescription {
			row = append(row, inst.Description)
		}
		row = append(row, inst.Label(), model.FormatAmount(inst.Value), yesNo(inst.Settled))
		rows = append(rows, row)
	}
	return rows
}

// FormatPurchase renders one purchase with its installments and reversals.
func FormatPurchase(d *engine.PurchaseDetails) string {
	p := d.Purchase
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render(p.Description), SubtleStyle.Render(p.ID))
	fmt.Fprintf(&b, "Kind: %s  State: %s  Total: %s\n", p.Kind, d.State, model.FormatAmount(p.TotalAmount))
	fmt.Fprintf(&b, "Purchased: %s  Card: %s  Installments: %d..%d\n\n",
		p.PurchaseDate.Format(dateLayout), p.CardID, p.StartIndex, p.InstallmentCount)

	b.WriteString(RenderTable(
		[]string{"ID", "Month", "#", "Value", "Settled"},
		installmentRows(d.Installments, false),
	))

	if len(d.Reversals) > 0 {
		b.WriteString("\n\n" + SubtitleStyle.Render("Reversals"))
		b.WriteString("\n" + FormatPurchases(d.Reversals))
	}
	return RenderBox(FolderIcon+" Purchase", b.String())
}

// FormatStatement renders a statement summary for a card.
func FormatStatement(card *model.Card, s *service.StatementSummary) string {
	title := fmt.Sprintf("%s %s statement %s", ChartIcon, card.Name, model.FormatMonth(s.StatementMonth))

	var b strings.Builder
	if len(s.Installments) == 0 {
		b.WriteString(SubtitleStyle.Render("No installments on this statement."))
	} else {
		b.WriteString(RenderTable(
			[]string{"ID", "Month", "Description", "#", "Value", "Settled"},
			installmentRows(s.Installments, true),
		))
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Charges:     %s\n", model.FormatAmount(s.Charges))
	fmt.Fprintf(&b, "Credits:     %s\n", model.FormatAmount(s.Credits))
	fmt.Fprintf(&b, "Total:       %s\n", BoldStyle.Render(model.FormatAmount(s.Total)))
	fmt.Fprintf(&b, "Settled:     %s\n", SuccessStyle.Render(model.FormatAmount(s.Settled)))
	fmt.Fprintf(&b, "Outstanding: %s", WarningStyle.Render(model.FormatAmount(s.Outstanding)))

	return RenderBox(title, b.String())
}

// FormatImportPreview lists every candidate with its duplicate verdict.
func FormatImportPreview(p *engine.ImportPreview, candidates []engine.Candidate) string {
	rows := make([][]string, 0, len(p.Verdicts))
	for i, v := range p.Verdicts {
		c := candidates[i]
		status := SuccessStyle.Render("new")
		switch {
		case v.Err != nil:
			status = ErrorStyle.Render("invalid: " + v.Err.Error())
		case v.Duplicate && c.Force:
			status = WarningStyle.Render("forced")
		case v.Duplicate:
			kind := "duplicate"
			if v.Fuzzy {
				kind = "near duplicate"
			}
			if v.Conflict != nil {
				kind = fmt.Sprintf("%s of %s (%s)", kind, v.Conflict.ID, v.Origin)
			}
			status = WarningStyle.Render(kind)
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			c.Purchase.PurchaseDate.Format(dateLayout),
			c.Purchase.Description,
			fmt.Sprintf("%d/%d", c.Purchase.StartIndex, c.Purchase.InstallmentCount),
			model.FormatAmount(c.Purchase.TotalAmount),
			status,
		})
	}

	summary := fmt.Sprintf("%d to import, %d duplicates, %d invalid", p.ToImport, p.Duplicates, p.Invalid)
	return RenderTable([]string{"#", "Date", "Description", "Start", "Total", "Status"}, rows) +
		"\n\n" + FormatInfo(summary)
}

// FormatImportResult summarises a committed import.
func FormatImportResult(r *engine.ImportResult) string {
	lines := []string{FormatSuccess(fmt.Sprintf("Imported %d purchases", r.Succeeded))}
	if r.Skipped > 0 {
		lines = append(lines, FormatInfo(fmt.Sprintf("Skipped %d duplicates", r.Skipped)))
	}
	if forced := r.Duplicates - r.Skipped; forced > 0 {
		lines = append(lines, FormatWarning(fmt.Sprintf("Forced %d duplicates", forced)))
	}
	if r.Failed > 0 {
		lines = append(lines, FormatError(fmt.Sprintf("%d candidates failed", r.Failed)))
	}
	for _, e := range r.Errors {
		lines = append(lines, FormatError(e.Error()))
	}
	return strings.Join(lines, "\n")
}

// FormatRepairReport summarises a repair run.
func FormatRepairReport(r *engine.RepairReport) string {
	lines := []string{
		FormatSuccess(fmt.Sprintf("Scanned %d purchases, repaired %d, created %d installments",
			r.Scanned, r.Repaired, r.Created)),
	}
	for _, f := range r.Failures {
		lines = append(lines, FormatError(f.Error()))
	}
	return strings.Join(lines, "\n")
}

// FormatAdvance describes an applied statement advance.
func FormatAdvance(a *model.Advance) string {
	msg := fmt.Sprintf("Advance %s of %s applied to %s",
		a.ID, model.FormatAmount(a.Amount), model.FormatMonth(a.StatementMonth))
	if n := len(a.SettledInstallmentIDs); n > 0 {
		msg += fmt.Sprintf(", settled %d installments", n)
	}
	return FormatSuccess(msg)
}

// FormatCheckpoints renders the checkpoint list.
func FormatCheckpoints(checkpoints []storage.CheckpointInfo) string {
	if len(checkpoints) == 0 {
		return SubtitleStyle.Render("No checkpoints found.")
	}
	rows := make([][]string, 0, len(checkpoints))
	for _, cp := range checkpoints {
		kind := "manual"
		if cp.IsAuto {
			kind = "auto"
		}
		rows = append(rows, []string{
			cp.ID,
			cp.CreatedAt.Format("2006-01-02 15:04"),
			kind,
			strconv.Itoa(cp.Purchases),
			strconv.Itoa(cp.Installments),
			formatBytes(cp.FileSize),
			cp.Description,
		})
	}
	return RenderTable([]string{"ID", "Created", "Type", "Purchases", "Installments", "Size", "Description"}, rows)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
