// Package storage holds the expense ledger port and its SQLite implementation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

var (
	// ErrStorage wraps every failure at the persistence boundary.
	ErrStorage = errors.New("storage error")
	// ErrNotFound is returned by Get for an unknown id. It also matches ErrStorage.
	ErrNotFound = fmt.Errorf("%w: expense not found", ErrStorage)
)

// Store is the append-only expense ledger.
//
// Range queries are half-open, [start, end), and ordered by date descending
// with the newest id first among equal dates.
type Store interface {
	Insert(ctx context.Context, e core.Expense) (core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	QueryByDateRange(ctx context.Context, start, end time.Time) ([]core.Expense, error)
	// SumAmountByDateRange returns nil when no expense falls in the range.
	SumAmountByDateRange(ctx context.Context, start, end time.Time) (*decimal.Decimal, error)
	Close() error
}

// Wrap annotates err with op and marks it as a storage failure.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Sum adds the amounts of expenses, returning nil for an empty slice.
func Sum(expenses []core.Expense) *decimal.Decimal {
	if len(expenses) == 0 {
		return nil
	}
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return &total
}
