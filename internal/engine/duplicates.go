package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/cardcycle/internal/fingerprint"
	"github.com/Veraticus/cardcycle/internal/model"
	"github.com/Veraticus/cardcycle/internal/service"
)

// Origin tells where the conflicting record of a duplicate lives.
type Origin string

const (
	// OriginBatch means another candidate of the same batch is the primary.
	OriginBatch Origin = "batch"
	// OriginStore means a persisted purchase already covers the candidate.
	OriginStore Origin = "store"
)

// Candidate is one purchase proposed for import. Key identifies it in
// verdicts and errors; Force imports it even when flagged duplicate.
type Candidate struct {
	Key      string
	Purchase model.Purchase
	Force    bool
}

// Conflict references the record a duplicate collides with.
type Conflict struct {
	BaseMonth   time.Time
	ID          string // purchase id, or candidate key for batch conflicts
	Description string
	StartIndex  int
}

// Verdict is the duplicate check outcome for one candidate.
type Verdict struct {
	Err         error // validation failure; the candidate cannot be imported
	Conflict    *Conflict
	Key         string
	Fingerprint string
	Origin      Origin
	Duplicate   bool
	Fuzzy       bool
}

// Importable reports whether the candidate would be imported by default.
func (v Verdict) Importable() bool {
	return v.Err == nil && !v.Duplicate
}

// ImportPreview summarises a batch before committing it.
type ImportPreview struct {
	Verdicts   []Verdict
	ToImport   int
	Duplicates int
	Invalid    int
}

// ImportResult summarises a committed batch.
type ImportResult struct {
	Created    []Series
	Errors     []ItemError
	Succeeded  int
	Failed     int
	Skipped    int
	Duplicates int
}

type storedPurchase struct {
	purchase    model.Purchase
	fingerprint string
	base        string
	baseMonth   time.Time
}

// DetectDuplicates checks a batch of candidates first against each other and
// then against the owner's persisted purchases. The returned verdicts are in
// candidate order. Candidates that fail validation get a verdict with Err set
// and take no part in matching.
func (e *Engine) DetectDuplicates(ctx context.Context, ownerID string, candidates []Candidate) ([]Verdict, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	verdicts := make([]Verdict, len(candidates))
	prepared := make([]model.Purchase, len(candidates))
	cards := make(map[string]*model.Card)

	for i, c := range candidates {
		verdicts[i].Key = c.Key
		p, err := e.prepareCandidate(ctx, ownerID, c.Purchase, cards)
		if err != nil {
			verdicts[i].Err = err
			continue
		}
		prepared[i] = p
		verdicts[i].Fingerprint = fingerprint.Of(&p)
	}

	e.markBatchDuplicates(candidates, prepared, verdicts)

	stored, err := e.loadStoredFingerprints(ctx, ownerID, cards)
	if err != nil {
		return nil, err
	}
	e.markStoreDuplicates(prepared, verdicts, stored)

	return verdicts, nil
}

// prepareCandidate applies defaults, validates and resolves the billing
// window so the fingerprint can be computed. Cards are cached across calls.
func (e *Engine) prepareCandidate(ctx context.Context, ownerID string, p model.Purchase, cards map[string]*model.Card) (model.Purchase, error) {
	p.OwnerID = ownerID
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return p, err
	}

	card, ok := cards[p.CardID]
	if !ok {
		var err error
		card, err = e.loadCard(ctx, e.storage, ownerID, p.CardID)
		if err != nil {
			return p, err
		}
		cards[p.CardID] = card
	}

	month, err := e.resolveWindow(&p, card)
	if err != nil {
		return p, err
	}
	p.StatementMonth = month
	return p, nil
}

// markBatchDuplicates groups valid candidates by fingerprint. The member with
// the smallest start index is the primary; ties go to the earlier candidate.
func (e *Engine) markBatchDuplicates(candidates []Candidate, prepared []model.Purchase, verdicts []Verdict) {
	primaries := make(map[string]int)
	for i := range verdicts {
		if verdicts[i].Err != nil {
			continue
		}
		fp := verdicts[i].Fingerprint
		current, seen := primaries[fp]
		if !seen || prepared[i].StartIndex < prepared[current].StartIndex {
			primaries[fp] = i
		}
	}

	for i := range verdicts {
		if verdicts[i].Err != nil {
			continue
		}
		primary := primaries[verdicts[i].Fingerprint]
		if primary == i {
			continue
		}
		p := prepared[primary]
		verdicts[i].Duplicate = true
		verdicts[i].Origin = OriginBatch
		verdicts[i].Conflict = &Conflict{
			ID:          candidates[primary].Key,
			Description: p.Description,
			StartIndex:  p.StartIndex,
			BaseMonth:   fingerprint.BaseStatementMonth(p.StatementMonth, p.StartIndex),
		}
	}
}

// loadStoredFingerprints loads the active amortizing purchases on every card
// referenced by the batch.
func (e *Engine) loadStoredFingerprints(ctx context.Context, ownerID string, cards map[string]*model.Card) (map[string][]storedPurchase, error) {
	stored := make(map[string][]storedPurchase, len(cards))
	for cardID := range cards {
		purchases, err := e.storage.GetPurchases(ctx, service.PurchaseFilter{
			OwnerID:    ownerID,
			CardID:     cardID,
			ActiveOnly: true,
			Kinds:      []model.PurchaseKind{model.KindSingle, model.KindInstallment, model.KindRecurring},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load purchases for duplicate check: %w", err)
		}
		for _, p := range purchases {
			stored[cardID] = append(stored[cardID], storedPurchase{
				purchase:    p,
				fingerprint: fingerprint.Of(&p),
				base:        fingerprint.BaseDescription(p.Description),
				baseMonth:   fingerprint.BaseStatementMonth(p.StatementMonth, p.StartIndex),
			})
		}
	}
	return stored, nil
}

func (e *Engine) markStoreDuplicates(prepared []model.Purchase, verdicts []Verdict, stored map[string][]storedPurchase) {
	for i := range verdicts {
		if verdicts[i].Err != nil || verdicts[i].Duplicate {
			continue
		}
		candidate := prepared[i]
		match, fuzzy := e.matchStored(&candidate, verdicts[i].Fingerprint, stored[candidate.CardID])
		if match == nil {
			continue
		}
		verdicts[i].Duplicate = true
		verdicts[i].Origin = OriginStore
		verdicts[i].Fuzzy = fuzzy
		verdicts[i].Conflict = &Conflict{
			ID:          match.purchase.ID,
			Description: match.purchase.Description,
			StartIndex:  match.purchase.StartIndex,
			BaseMonth:   match.baseMonth,
		}
	}
}

// matchStored returns the first stored purchase with the same fingerprint,
// falling back to one that differs only by a total within the fuzzy tolerance.
func (e *Engine) matchStored(candidate *model.Purchase, fp string, stored []storedPurchase) (*storedPurchase, bool) {
	for i := range stored {
		if stored[i].fingerprint == fp {
			return &stored[i], false
		}
	}

	base := fingerprint.BaseDescription(candidate.Description)
	baseMonth := fingerprint.BaseStatementMonth(candidate.StatementMonth, candidate.StartIndex)
	for i := range stored {
		s := &stored[i]
		if s.base != base ||
			s.purchase.InstallmentCount != candidate.InstallmentCount ||
			!s.baseMonth.Equal(baseMonth) {
			continue
		}
		if candidate.TotalAmount.Sub(s.purchase.TotalAmount).Abs().LessThan(e.fuzzyTolerance) {
			return s, true
		}
	}
	return nil, false
}

// PreviewImport runs duplicate detection and counts what a commit would do
// without writing anything.
func (e *Engine) PreviewImport(ctx context.Context, ownerID string, candidates []Candidate) (*ImportPreview, error) {
	verdicts, err := e.DetectDuplicates(ctx, ownerID, candidates)
	if err != nil {
		return nil, err
	}

	preview := &ImportPreview{Verdicts: verdicts}
	for i, v := range verdicts {
		switch {
		case v.Err != nil:
			preview.Invalid++
		case v.Duplicate && !candidates[i].Force:
			preview.Duplicates++
		default:
			preview.ToImport++
		}
	}
	return preview, nil
}

// CommitImport imports every valid candidate that is not a duplicate or is
// forced. Each candidate is written independently; a failure is recorded and
// the remaining candidates are still processed.
func (e *Engine) CommitImport(ctx context.Context, ownerID string, candidates []Candidate) (*ImportResult, error) {
	verdicts, err := e.DetectDuplicates(ctx, ownerID, candidates)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, c := range candidates {
		v := verdicts[i]
		if v.Err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Key: c.Key, Err: v.Err})
			continue
		}
		if v.Duplicate {
			result.Duplicates++
			if !c.Force {
				result.Skipped++
				continue
			}
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		series, err := e.CreatePurchase(ctx, ownerID, c.Purchase)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Key: c.Key, Err: err})
			slog.Warn("Failed to import candidate", "key", c.Key, "error", err)
			continue
		}
		result.Succeeded++
		result.Created = append(result.Created, *series)
	}

	slog.Info("Import committed",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped_duplicates", result.Skipped)
	return result, nil
}
