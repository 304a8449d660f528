package ledger

import "github.com/govalues/money"

// SignedDelta is the balance change caused by posting t: +amount for income,
// -amount for expense.
func SignedDelta(t Transaction) money.Amount {
	if t.Type == TransactionTypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// ReversalDelta undoes SignedDelta(t): an expense adds its amount back, an
// income subtracts it.
func ReversalDelta(t Transaction) money.Amount {
	return SignedDelta(t).Neg()
}

// SumDeltas adds deltas that share a currency. Overflow or a currency mismatch
// is reported as an error.
func SumDeltas(curr string, deltas ...money.Amount) (money.Amount, error) {
	total, err := money.NewAmountFromMinorUnits(curr, 0)
	if err != nil {
		return money.Amount{}, err
	}
	for _, d := range deltas {
		if total, err = total.Add(d); err != nil {
			return money.Amount{}, err
		}
	}
	return total, nil
}
