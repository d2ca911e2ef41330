package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ExpenseForm is the raw state of the entry form. Amount is kept as typed
// so that non-numeric input can be flagged.
type ExpenseForm struct {
	Title            string
	Amount           string
	Category         Category
	Notes            string
	ReceiptImagePath string
}

// ValidationResult carries one flag per form field plus the parsed amount.
type ValidationResult struct {
	TitleError  bool
	AmountError bool
	NotesError  bool

	amount decimal.Decimal
}

// ValidationError is returned when a form is refused. Fields names the
// offending form fields in form order.
type ValidationError struct {
	Fields []string
}

// ErrValidation matches any *ValidationError with errors.Is.
var ErrValidation = errors.New("validation failed")

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks every field in a single pass.
func Validate(f ExpenseForm) ValidationResult {
	var res ValidationResult
	res.TitleError = strings.TrimSpace(f.Title) == ""
	amt, err := ParseAmount(f.Amount)
	res.AmountError = err != nil
	res.amount = amt
	res.NotesError = utf8.RuneCountInString(f.Notes) > MaxNotesLength
	return res
}

func (r ValidationResult) Valid() bool {
	return !r.TitleError && !r.AmountError && !r.NotesError
}

// Err returns nil for a valid result.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	ve := &ValidationError{}
	if r.TitleError {
		ve.Fields = append(ve.Fields, "title")
	}
	if r.AmountError {
		ve.Fields = append(ve.Fields, "amount")
	}
	if r.NotesError {
		ve.Fields = append(ve.Fields, "notes")
	}
	return ve
}

// Expense validates the form and builds a record dated at now. Blank notes
// are dropped and an empty category falls back to DefaultCategory.
func (f ExpenseForm) Expense(now time.Time) (Expense, error) {
	res := Validate(f)
	if err := res.Err(); err != nil {
		return Expense{}, err
	}
	cat := Category(strings.TrimSpace(string(f.Category)))
	if cat == "" {
		cat = DefaultCategory
	}
	notes := f.Notes
	if strings.TrimSpace(notes) == "" {
		notes = ""
	}
	return Expense{
		Title:            strings.TrimSpace(f.Title),
		Amount:           res.amount,
		Category:         cat,
		Date:             now,
		Notes:            notes,
		ReceiptImagePath: f.ReceiptImagePath,
	}, nil
}
