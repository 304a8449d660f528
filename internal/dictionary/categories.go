// Package dictionary lists the curated default categories offered for each
// transaction type. Categories outside this list are accepted as long as they
// are valid slugs.
package dictionary

import "github.com/tinoosan/budgetledger/internal/ledger"

type CategoryDef struct {
	Code  string                 `json:"code"`
	Label string                 `json:"label"`
	Type  ledger.TransactionType `json:"type"`
}

var curated = map[ledger.TransactionType][]CategoryDef{
	ledger.TransactionTypeIncome: {
		{Code: "salary", Label: "Salary"},
		{Code: "freelance", Label: "Freelance"},
		{Code: "investments", Label: "Investments"},
		{Code: "business", Label: "Business"},
		{Code: "rental", Label: "Rental"},
		{Code: "other_income", Label: "Other Income"},
	},
	ledger.TransactionTypeExpense: {
		{Code: "housing", Label: "Housing"},
		{Code: "transportation", Label: "Transportation"},
		{Code: "groceries", Label: "Groceries"},
		{Code: "utilities", Label: "Utilities"},
		{Code: "entertainment", Label: "Entertainment"},
		{Code: "food", Label: "Food"},
		{Code: "shopping", Label: "Shopping"},
		{Code: "healthcare", Label: "Healthcare"},
		{Code: "education", Label: "Education"},
		{Code: "personal", Label: "Personal Care"},
		{Code: "travel", Label: "Travel"},
		{Code: "insurance", Label: "Insurance"},
		{Code: "gifts", Label: "Gifts & Donations"},
		{Code: "bills", Label: "Bills & Fees"},
		{Code: "other_expense", Label: "Other Expenses"},
	},
}

// CategoriesFor returns the curated categories for t, or all of them when t is nil.
func CategoriesFor(t *ledger.TransactionType) []CategoryDef {
	types := []ledger.TransactionType{ledger.TransactionTypeIncome, ledger.TransactionTypeExpense}
	if t != nil {
		types = []ledger.TransactionType{*t}
	}
	out := make([]CategoryDef, 0)
	for _, typ := range types {
		for _, c := range curated[typ] {
			c.Type = typ
			out = append(out, c)
		}
	}
	return out
}

// IsCurated reports whether code is a default category for t.
func IsCurated(t ledger.TransactionType, code string) bool {
	for _, c := range curated[t] {
		if c.Code == code {
			return true
		}
	}
	return false
}
