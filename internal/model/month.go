package model

import (
	"fmt"
	"time"
)

// MonthLayout is the canonical textual form of a statement month.
const MonthLayout = "2006-01"

// monthStorageLayout is how statement months are persisted.
const monthStorageLayout = "2006-01-02"

// MonthOf returns the first day of t's month at midnight UTC.
func MonthOf(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves a month forward (or backward when n is negative) by n
// calendar months. The result is always a first-of-month date.
func AddMonths(month time.Time, n int) time.Time {
	return MonthOf(month).AddDate(0, n, 0)
}

// MonthsBetween returns the number of calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return (by-ay)*12 + int(bm-am)
}

// ParseMonth parses "2006-01" or "2006-01-02" into a first-of-month date.
func ParseMonth(s string) (time.Time, error) {
	for _, layout := range []string{MonthLayout, monthStorageLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", s)
}

// FormatMonth renders a month as YYYY-MM.
func FormatMonth(t time.Time) string {
	return t.Format(MonthLayout)
}

// MonthKey renders a month in its storage form.
func MonthKey(t time.Time) string {
	return MonthOf(t).Format(monthStorageLayout)
}
