// Package billing maps purchase dates to card statement months.
package billing

import (
	"fmt"
	"time"

	"github.com/Veraticus/cardcycle/internal/common"
	"github.com/Veraticus/cardcycle/internal/model"
)

// Resolver maps a purchase date and a card's closing day to the statement
// month the purchase is billed in. Implementations must be pure and
// deterministic.
type Resolver interface {
	ResolveStatementMonth(purchaseDate time.Time, closingDay int) (time.Time, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(purchaseDate time.Time, closingDay int) (time.Time, error)

// ResolveStatementMonth calls f.
func (f ResolverFunc) ResolveStatementMonth(purchaseDate time.Time, closingDay int) (time.Time, error) {
	return f(purchaseDate, closingDay)
}

// ClosingDayResolver bills a purchase made on or before the closing day in
// the purchase month's statement, and a purchase made after it in the next
// month's statement. A closing day beyond the end of a short month closes on
// that month's last day.
type ClosingDayResolver struct{}

// ResolveStatementMonth implements Resolver.
func (ClosingDayResolver) ResolveStatementMonth(purchaseDate time.Time, closingDay int) (time.Time, error) {
	if purchaseDate.IsZero() {
		return time.Time{}, common.NewValidationError("purchase_date", "is required")
	}
	if closingDay < 1 || closingDay > 31 {
		return time.Time{}, common.NewValidationError("closing_day", fmt.Sprintf("%d is not between 1 and 31", closingDay))
	}

	month := model.MonthOf(purchaseDate)
	if purchaseDate.Day() > effectiveClosingDay(month, closingDay) {
		return model.AddMonths(month, 1), nil
	}
	return month, nil
}

func effectiveClosingDay(month time.Time, closingDay int) int {
	last := model.AddMonths(month, 1).AddDate(0, 0, -1).Day()
	if closingDay > last {
		return last
	}
	return closingDay
}
