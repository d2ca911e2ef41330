package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Staff   Category = "Staff"
	Travel  Category = "Travel"
	Food    Category = "Food"
	Utility Category = "Utility"

	// DefaultCategory is preselected on the entry form.
	DefaultCategory = Food

	// MaxNotesLength is counted in characters, not bytes.
	MaxNotesLength = 100
)

type (
	Category string

	// Expense is an immutable ledger record. ID is zero until the store assigns one.
	Expense struct {
		ID               int64           `json:"id"`
		Title            string          `json:"title"`
		Amount           decimal.Decimal `json:"amount"`
		Category         Category        `json:"category"`
		Date             time.Time       `json:"date"`
		Notes            string          `json:"notes,omitempty"`
		ReceiptImagePath string          `json:"receipt_image_path,omitempty"`
	}
)

var (
	ErrEmptyTitle    = errors.New("empty title")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotesTooLong  = errors.New("notes too long (max 100 characters)")
	ErrMissingDate   = errors.New("date cannot be zero")
)

// Categories lists the known categories in display order.
func Categories() []Category {
	return []Category{Staff, Travel, Food, Utility}
}

// Known reports whether c is one of the fixed categories.
func (c Category) Known() bool {
	switch c {
	case Staff, Travel, Food, Utility:
		return true
	}
	return false
}

// Color returns the chart colour for the category. Unknown categories
// render in a neutral grey.
func (c Category) Color() string {
	switch c {
	case Staff:
		return "#00BCD4"
	case Travel:
		return "#4CAF50"
	case Food:
		return "#FFC107"
	case Utility:
		return "#F44336"
	default:
		return "#9E9E9E"
	}
}

func (c Category) String() string {
	return string(c)
}

// Millis returns the expense date as epoch milliseconds.
func (e Expense) Millis() int64 {
	return e.Date.UnixMilli()
}

// FromMillis converts epoch milliseconds to a time in the local zone.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(time.Local)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if utf8.RuneCountInString(e.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	if e.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}
