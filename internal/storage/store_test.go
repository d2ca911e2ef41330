package storage

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

func TestWrap(t *testing.T) {
	if Wrap("op", nil) != nil {
		t.Fatal("nil stays nil")
	}
	cause := errors.New("disk I/O error")
	err := Wrap("insert expense", cause)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("wrapped error %v lost its chain", err)
	}
	if got := Wrap("outer", err).Error(); got != "outer: insert expense: storage error: disk I/O error" {
		t.Fatalf("double wrap = %q", got)
	}
}

func TestSum(t *testing.T) {
	if Sum(nil) != nil {
		t.Fatal("empty sum must be nil")
	}
	got := Sum([]core.Expense{
		{Amount: decimal.RequireFromString("1.25")},
		{Amount: decimal.RequireFromString("2.75")},
	})
	if got == nil || !got.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("sum = %v", got)
	}
}
