package v1

import (
	"net/http"
	"strings"

	"github.com/tinoosan/budgetledger/internal/dictionary"
	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
)

// GET /v1/dictionary/categories?type=
func (s *Server) getCategoriesDictionary(w http.ResponseWriter, r *http.Request) {
	var t *ledger.TransactionType
	if ts := r.URL.Query().Get("type"); ts != "" {
		tt := ledger.TransactionType(strings.ToUpper(ts))
		if !tt.Valid() {
			writeError(w, errs.Invalid("type", "must be INCOME or EXPENSE"))
			return
		}
		t = &tt
	}
	ok(w, http.StatusOK, struct {
		Items []dictionary.CategoryDef `json:"items"`
	}{Items: dictionary.CategoriesFor(t)})
}
