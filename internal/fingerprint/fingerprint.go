// Package fingerprint derives a stable identity for multi-installment
// purchases, independent of which installment is being viewed.
package fingerprint

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Veraticus/cardcycle/internal/model"
)

var (
	// "Installment 3/12", "Parcela 3/12", "parcela 3 de 12"
	labelledSuffix = regexp.MustCompile(`(?i)\s*[-–(]?\s*\b(?:installment|parcela|parc\.?)\s*(\d{1,3})\s*(?:/|de|of)\s*(\d{1,3})\s*\)?`)
	// "(3/12)"
	parenSuffix = regexp.MustCompile(`\s*\(\s*(\d{1,3})\s*/\s*(\d{1,3})\s*\)`)
	// "- 3/12"
	dashSuffix = regexp.MustCompile(`\s*[-–]\s*(\d{1,3})\s*/\s*(\d{1,3})\b`)
	// trailing " 3/12"
	trailingSuffix = regexp.MustCompile(`\s+(\d{1,3})\s*/\s*(\d{1,3})\s*$`)

	suffixPatterns = []*regexp.Regexp{labelledSuffix, parenSuffix, dashSuffix, trailingSuffix}

	diacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

const separators = " \t-–—:/|,.;"

// Normalize lowercases text, strips diacritics and collapses whitespace.
func Normalize(text string) string {
	stripped, _, err := transform.String(diacritics, text)
	if err != nil {
		stripped = text
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// StripInstallmentSuffix removes "installment k of n" markers from a
// description and trims separators left at either end.
func StripInstallmentSuffix(text string) string {
	out := strings.Trim(strings.TrimSpace(text), separators)
	for _, re := range suffixPatterns {
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			// Keep things like "25/12" that cannot be an installment position.
			if _, _, ok := positionOf(re, match); !ok {
				return match
			}
			return " "
		})
	}
	return strings.Trim(strings.Join(strings.Fields(out), " "), separators)
}

func positionOf(re *regexp.Regexp, text string) (k, n int, ok bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	k, errK := strconv.Atoi(m[1])
	n, errN := strconv.Atoi(m[2])
	if errK != nil || errN != nil || k < 1 || n < 1 || k > n {
		return 0, 0, false
	}
	return k, n, true
}

// ParseInstallmentSuffix extracts k and n from the first installment marker
// found in text.
func ParseInstallmentSuffix(text string) (k, n int, ok bool) {
	for _, re := range suffixPatterns {
		if k, n, ok := positionOf(re, text); ok {
			return k, n, true
		}
	}
	return 0, 0, false
}

// BaseStatementMonth returns the month the first installment of the series
// would fall in, given the month of installment startIndex.
func BaseStatementMonth(firstMonth time.Time, startIndex int) time.Time {
	if startIndex < 1 {
		startIndex = 1
	}
	return model.AddMonths(firstMonth, -(startIndex - 1))
}

// BaseDescription is the normalized description with installment markers removed.
func BaseDescription(description string) string {
	return Normalize(StripInstallmentSuffix(description))
}

// Fingerprint derives the identity key of a purchase:
// normalizedBaseDescription|count|roundedTotal|baseMonth.
func Fingerprint(description string, count int, total decimal.Decimal, firstMonth time.Time, startIndex int) string {
	return strings.Join([]string{
		BaseDescription(description),
		strconv.Itoa(count),
		model.Round2(total).StringFixed(2),
		model.FormatMonth(BaseStatementMonth(firstMonth, startIndex)),
	}, "|")
}

// Of returns the fingerprint of a persisted or candidate purchase.
func Of(p *model.Purchase) string {
	return Fingerprint(p.Description, p.InstallmentCount, p.TotalAmount, p.StatementMonth, p.StartIndex)
}
