// Package budget implements the BudgetTracker: a pure usage computation and
// the per-user monthly budget built on it.
package budget

import (
	"math"

	"github.com/govalues/decimal"
)

// Band is a presentation hint derived from the percentage used.
type Band string

const (
	BandNormal   Band = "normal"
	BandWarning  Band = "warning"
	BandCritical Band = "critical"
)

const (
	warningAt  = 75
	criticalAt = 90
)

// Usage is the outcome of comparing expenses against a budget amount.
type Usage struct {
	PercentUsed float64
	Remaining   decimal.Decimal
	Band        Band
}

// BandFor maps a percentage in [0,100] to its band.
func BandFor(pct float64) Band {
	switch {
	case pct >= criticalAt:
		return BandCritical
	case pct >= warningAt:
		return BandWarning
	default:
		return BandNormal
	}
}

// ComputeUsage never divides by a non-positive budget and never returns a
// non-finite percentage. remaining is max(0, budget - expenses).
func ComputeUsage(budget, expenses decimal.Decimal) Usage {
	pct := 0.0
	if budget.IsPos() {
		p, err := percentOf(expenses, budget)
		switch {
		case err == nil:
			pct, _ = p.Float64()
		case expenses.Cmp(budget) > 0:
			// decimal overflow: expenses dwarf the budget
			pct = 100
		}
	}
	pct = clampPercent(pct)

	remaining := decimal.Zero
	if diff, err := budget.Sub(expenses); err == nil && diff.IsPos() {
		remaining = diff
	}
	return Usage{PercentUsed: pct, Remaining: remaining, Band: BandFor(pct)}
}

func percentOf(part, whole decimal.Decimal) (decimal.Decimal, error) {
	q, err := part.Quo(whole)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.Mul(decimal.Hundred)
}

// ComputeUsageFloat is ComputeUsage for callers holding binary floats.
// NaN and infinite inputs are treated as zero. Finite figures too large for a
// decimal are compared as floats, so huge expenses still report 100.
func ComputeUsageFloat(budget, expenses float64) Usage {
	budget, expenses = finiteOrZero(budget), finiteOrZero(expenses)
	b, bok := fromFloat(budget)
	e, eok := fromFloat(expenses)
	if bok && eok {
		return ComputeUsage(b, e)
	}
	pct := 0.0
	if budget > 0 {
		if q := expenses / budget; q >= 1 {
			pct = 100
		} else {
			pct = clampPercent(q * 100)
		}
	}
	remaining := decimal.Zero
	if diff := budget - expenses; diff > 0 {
		if d, ok := fromFloat(diff); ok {
			remaining = d
		}
	}
	return Usage{PercentUsed: pct, Remaining: remaining, Band: BandFor(pct)}
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	d, err := decimal.NewFromFloat64(f)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0):
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
