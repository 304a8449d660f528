// Package recurring computes next-occurrence dates for recurring transactions
// and materialises due occurrences into ordinary transactions.
package recurring

import (
	"time"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
)

// NextOccurrence returns the date one interval after date. Monthly and yearly
// steps keep the day of month, clamped to the last day of the target month
// (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28 on non-leap years). The time of day
// and location of date are preserved.
func NextOccurrence(date time.Time, interval ledger.RecurringInterval) (time.Time, error) {
	switch interval {
	case ledger.IntervalDaily:
		return date.AddDate(0, 0, 1), nil
	case ledger.IntervalWeekly:
		return date.AddDate(0, 0, 7), nil
	case ledger.IntervalMonthly:
		return addMonthsClamped(date, 1), nil
	case ledger.IntervalYearly:
		return addMonthsClamped(date, 12), nil
	default:
		return time.Time{}, errs.Invalid("recurringInterval", "unknown interval "+string(interval))
	}
}

// NextAfter returns the occurrence that follows prev in the series anchored at
// anchor. Monthly and yearly series are counted from the anchor so the anchor's
// day of month comes back after a clamped month (Jan 31, Feb 29, Mar 31).
func NextAfter(anchor, prev time.Time, interval ledger.RecurringInterval) (time.Time, error) {
	var step int
	switch interval {
	case ledger.IntervalMonthly:
		step = 1
	case ledger.IntervalYearly:
		step = 12
	default:
		return NextOccurrence(prev, interval)
	}
	anchor = anchor.In(prev.Location())
	months := (prev.Year()-anchor.Year())*12 + int(prev.Month()-anchor.Month())
	if months < 0 {
		return NextOccurrence(prev, interval)
	}
	return addMonthsClamped(anchor, months+step), nil
}

// addMonthsClamped avoids time.AddDate's normalisation (Jan 31 + 1 month = Mar 3).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	first := time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
