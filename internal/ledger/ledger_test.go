package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

var today = time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)

func expenseAt(amount string, at time.Time) core.Expense {
	return core.Expense{Title: "t", Amount: decimal.RequireFromString(amount), Category: core.Food, Date: at}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	var zero T
	return zero
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	store := memory.New(expenseAt("5", today.Add(time.Hour)))
	l := New(store)
	sub := l.Subscribe(context.Background(), core.DayRange(today))
	defer sub.Close()

	snap := receive(t, sub.C())
	if snap.Err != nil || len(snap.Expenses) != 1 || snap.Version != 0 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestInsertNotifiesMatchingWindowsOnly(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()
	todaySub := l.Subscribe(ctx, core.DayRange(today))
	defer todaySub.Close()
	yesterdaySub := l.Subscribe(ctx, core.DayRange(today.AddDate(0, 0, -1)))
	defer yesterdaySub.Close()
	receive(t, todaySub.C())
	receive(t, yesterdaySub.C())

	stored, err := l.Insert(ctx, expenseAt("12.5", today.Add(10*time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID == 0 {
		t.Fatal("insert must return the stored id")
	}

	snap := receive(t, todaySub.C())
	if snap.Version != 1 || len(snap.Expenses) != 1 || snap.Expenses[0].ID != stored.ID {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	select {
	case s := <-yesterdaySub.C():
		t.Fatalf("yesterday's window was refreshed: %+v", s)
	default:
	}
}

func TestMailboxKeepsLatestSnapshot(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()
	sub := l.Subscribe(ctx, core.DayRange(today))
	defer sub.Close()

	for i := 0; i < 3; i++ {
		if _, err := l.Insert(ctx, expenseAt("1", today.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}
	snap := receive(t, sub.C())
	if snap.Version != 3 || len(snap.Expenses) != 3 {
		t.Fatalf("expected latest snapshot at version 3, got v%d with %d items", snap.Version, len(snap.Expenses))
	}
	if sub.Replaced() != 3 {
		t.Fatalf("replaced = %d, want 3", sub.Replaced())
	}
	select {
	case s := <-sub.C():
		t.Fatalf("stale snapshot still queued: v%d", s.Version)
	default:
	}
}

func TestSubscribeSum(t *testing.T) {
	l := New(memory.New())
	ctx := context.Background()
	sub := l.SubscribeSum(ctx, core.DayRange(today))
	defer sub.Close()

	if first := receive(t, sub.C()); first.Total != nil {
		t.Fatalf("empty day must have nil total, got %s", first.Total)
	}
	l.Insert(ctx, expenseAt("2.25", today.Add(time.Hour)))
	if s := receive(t, sub.C()); s.Total == nil || s.Total.String() != "2.25" {
		t.Fatalf("total = %v", s.Total)
	}
}

func TestInsertRejectsInvalidAndStorageErrors(t *testing.T) {
	store := memory.New()
	l := New(store)
	ctx := context.Background()
	sub := l.Subscribe(ctx, core.DayRange(today))
	defer sub.Close()
	receive(t, sub.C())

	if _, err := l.Insert(ctx, core.Expense{Title: "", Amount: decimal.NewFromInt(1), Date: today}); !errors.Is(err, core.ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	store.FailInserts = true
	if _, err := l.Insert(ctx, expenseAt("1", today)); !errors.Is(err, storage.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if l.Version() != 0 {
		t.Fatalf("failed inserts must not advance the version")
	}
	select {
	case s := <-sub.C():
		t.Fatalf("failed insert published a snapshot: %+v", s)
	default:
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	l := New(memory.New())
	ctx, cancel := context.WithCancel(context.Background())
	sub := l.Subscribe(ctx, core.DayRange(today))
	receive(t, sub.C())
	cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	if l.Subscribers() != 0 {
		t.Fatalf("subscriber still registered")
	}
	sub.Close()
}
