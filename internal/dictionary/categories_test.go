package dictionary

import (
	"testing"

	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/slug"
)

func TestCategoriesFor(t *testing.T) {
	exp := ledger.TransactionTypeExpense
	expense := CategoriesFor(&exp)
	if len(expense) == 0 {
		t.Fatalf("expected expense categories")
	}
	for _, c := range expense {
		if c.Type != ledger.TransactionTypeExpense {
			t.Fatalf("category %s has type %s", c.Code, c.Type)
		}
	}
	all := CategoriesFor(nil)
	if len(all) <= len(expense) {
		t.Fatalf("all categories should include income ones")
	}
}

func TestCuratedCodesAreSlugs(t *testing.T) {
	for _, c := range CategoriesFor(nil) {
		if !slug.IsSlug(c.Code) {
			t.Fatalf("curated code %q is not a slug", c.Code)
		}
	}
	if !IsCurated(ledger.TransactionTypeIncome, "salary") || IsCurated(ledger.TransactionTypeIncome, "groceries") {
		t.Fatalf("IsCurated mismatch")
	}
}
