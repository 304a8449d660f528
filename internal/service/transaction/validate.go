package transaction

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/meta"
	"github.com/tinoosan/budgetledger/internal/slug"
)

// MaxDescriptionLen bounds Input.Description in characters.
const MaxDescriptionLen = 500

// MaxAmountScale is the number of fractional digits the store keeps.
const MaxAmountScale = 4

// Input is the caller-supplied shape of a transaction for Create and Update.
type Input struct {
	Type              ledger.TransactionType
	Amount            string // decimal text
	Date              time.Time
	AccountID         uuid.UUID
	Category          string
	Description       string
	IsRecurring       bool
	RecurringInterval ledger.RecurringInterval
	Metadata          meta.Metadata
}

// validated is Input after schema checks, with the amount parsed and the
// category normalised.
type validated struct {
	Input
	amount decimal.Decimal
}

// Validate runs every schema check that does not need the store.
func Validate(in Input) error {
	_, err := validate(in)
	return err
}

func validate(in Input) (validated, error) {
	if !in.Type.Valid() {
		return validated{}, errs.Invalid("type", "must be INCOME or EXPENSE")
	}
	amt, err := parseAmount(in.Amount)
	if err != nil {
		return validated{}, err
	}
	if in.Date.IsZero() {
		return validated{}, errs.Invalid("date", "required")
	}
	if in.AccountID == uuid.Nil {
		return validated{}, errs.Invalid("accountId", "required")
	}
	code := slug.Slugify(in.Category)
	if !slug.IsSlug(code) {
		return validated{}, errs.Invalid("category", "required, 2-40 letters, digits or underscores")
	}
	in.Category = code
	in.Description = strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLen {
		return validated{}, errs.Invalid("description", "too long")
	}
	switch {
	case in.IsRecurring && !in.RecurringInterval.Valid():
		return validated{}, errs.Invalid("recurringInterval", "required when isRecurring is true")
	case !in.IsRecurring && in.RecurringInterval != ledger.IntervalNone:
		return validated{}, errs.Invalid("recurringInterval", "must be empty when isRecurring is false")
	}
	if in.Metadata == nil {
		in.Metadata = meta.Metadata{}
	}
	if err := in.Metadata.Validate(); err != nil {
		return validated{}, err
	}
	return validated{Input: in, amount: amt}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.Parse(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, errs.Invalid("amount", "not a decimal number")
	}
	if !d.IsPos() {
		return decimal.Decimal{}, errs.Invalid("amount", "must be > 0")
	}
	if d.Scale() > MaxAmountScale {
		return decimal.Decimal{}, errs.Invalid("amount", "at most 4 decimal places")
	}
	return d, nil
}
