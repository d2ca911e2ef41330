// Package storagetest checks that a storage.Store honours the ledger contract.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// Base is the reference day used by the contract checks.
var Base = time.Date(2025, 7, 4, 0, 0, 0, 0, time.Local)

func expense(title, amount string, cat core.Category, at time.Time) core.Expense {
	return core.Expense{
		Title:    title,
		Amount:   decimal.RequireFromString(amount),
		Category: cat,
		Date:     at,
	}
}

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("insert assigns increasing ids", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		a, err := s.Insert(ctx, expense("Coffee", "3.50", core.Food, Base.Add(9*time.Hour)))
		if err != nil {
			t.Fatal(err)
		}
		b, err := s.Insert(ctx, expense("Taxi", "18", core.Travel, Base.Add(10*time.Hour)))
		if err != nil {
			t.Fatal(err)
		}
		if a.ID <= 0 || b.ID <= a.ID {
			t.Fatalf("ids %d, %d are not increasing", a.ID, b.ID)
		}
		got, err := s.Get(ctx, a.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Title != "Coffee" || !got.Amount.Equal(decimal.RequireFromString("3.5")) || got.Category != core.Food {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if !got.Date.Equal(a.Date) {
			t.Fatalf("date %v, want %v", got.Date, a.Date)
		}
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := open(t).Get(context.Background(), 999)
		if !errors.Is(err, storage.ErrNotFound) || !errors.Is(err, storage.ErrStorage) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("range is half-open and newest first", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		day := core.DayRange(Base)
		inputs := []core.Expense{
			expense("before", "1", core.Food, day.Start.Add(-time.Millisecond)),
			expense("start", "2", core.Food, day.Start),
			expense("noon", "3", core.Staff, day.Start.Add(12*time.Hour)),
			expense("noon again", "4", core.Utility, day.Start.Add(12*time.Hour)),
			expense("end", "5", core.Travel, day.End),
		}
		for _, e := range inputs {
			if _, err := s.Insert(ctx, e); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.QueryByDateRange(ctx, day.Start, day.End)
		if err != nil {
			t.Fatal(err)
		}
		var titles []string
		for _, e := range got {
			titles = append(titles, e.Title)
		}
		want := []string{"noon again", "noon", "start"}
		if len(titles) != len(want) {
			t.Fatalf("titles = %v, want %v", titles, want)
		}
		for i := range want {
			if titles[i] != want[i] {
				t.Fatalf("titles = %v, want %v", titles, want)
			}
		}

		sum, err := s.SumAmountByDateRange(ctx, day.Start, day.End)
		if err != nil {
			t.Fatal(err)
		}
		if sum == nil || !sum.Equal(decimal.RequireFromString("9")) {
			t.Fatalf("sum = %v, want 9", sum)
		}
	})

	t.Run("sum is nil without rows", func(t *testing.T) {
		s := open(t)
		sum, err := s.SumAmountByDateRange(context.Background(), Base, Base.AddDate(0, 0, 1))
		if err != nil {
			t.Fatal(err)
		}
		if sum != nil {
			t.Fatalf("expected nil sum, got %s", sum)
		}
	})

	t.Run("amounts keep decimal precision", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, amt := range []string{"0.1", "0.2"} {
			if _, err := s.Insert(ctx, expense("x", amt, core.Food, Base)); err != nil {
				t.Fatal(err)
			}
		}
		sum, err := s.SumAmountByDateRange(ctx, Base, Base.AddDate(0, 0, 1))
		if err != nil {
			t.Fatal(err)
		}
		if sum == nil || sum.String() != "0.3" {
			t.Fatalf("sum = %v, want 0.3", sum)
		}
	})
}
