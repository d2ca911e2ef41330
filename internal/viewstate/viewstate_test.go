package viewstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	"expensetracker/internal/storage/memory"
)

var now = time.Date(2025, 7, 4, 15, 0, 0, 0, time.UTC)

func add(t *testing.T, l *ledger.Ledger, amount string, cat core.Category, at time.Time) core.Expense {
	t.Helper()
	e, err := l.Insert(context.Background(), core.Expense{
		Title: "t", Amount: decimal.RequireFromString(amount), Category: cat, Date: at,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// waitFor blocks until an update satisfies ok.
func waitFor(t *testing.T, ch <-chan Update, ok func(Update) bool) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if ok(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
		}
	}
}

func atVersion(v uint64) func(Update) bool {
	return func(u Update) bool { return u.Version >= v }
}

func TestListStateFollowsLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := ledger.New(memory.New())
	add(t, l, "10", core.Food, now.Add(-time.Hour))

	s := NewListState(ctx, l, Selection{Date: now, GroupBy: aggregate.GroupCategory, SortBy: aggregate.SortAmount}, nil)
	defer s.Close()
	waitFor(t, s.Updates(), atVersion(1))

	add(t, l, "25", core.Travel, now.Add(-2*time.Hour))
	waitFor(t, s.Updates(), atVersion(2))

	view, sel, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if view.TotalCount != 2 || !view.TotalAmount.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("unexpected view %+v", view)
	}
	if keys := view.Groups.Keys(); len(keys) != 2 || keys[0] != "Travel" {
		t.Fatalf("groups = %v", keys)
	}
	if sel.SortBy != aggregate.SortAmount {
		t.Fatalf("selection lost: %+v", sel)
	}
}

func TestListStateSelectionChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := ledger.New(memory.New())
	add(t, l, "10", core.Food, now)
	add(t, l, "5", core.Staff, now.AddDate(0, 0, -1))

	s := NewListState(ctx, l, Selection{Date: now}, nil)
	defer s.Close()
	waitFor(t, s.Updates(), atVersion(2))

	s.SetGroupBy(aggregate.GroupTime)
	view, _, _ := s.Current()
	if view.Groups.Len() != 1 || view.Groups.Keys()[0] != aggregate.AllExpensesKey {
		t.Fatalf("group toggle not applied: %v", view.Groups.Keys())
	}

	s.SetDate(now.AddDate(0, 0, -1))
	waitFor(t, s.Updates(), func(u Update) bool {
		v, sel, _ := s.Current()
		return sel.Date.Equal(now.AddDate(0, 0, -1)) && v.TotalCount == 1
	})
	view, _, _ = s.Current()
	items, _ := view.Groups.Get(aggregate.AllExpensesKey)
	if len(items) != 1 || items[0].Category != core.Staff {
		t.Fatalf("resubscribe showed %+v", items)
	}

	// Inserts for the old day no longer reach the list.
	add(t, l, "99", core.Food, now)
	view, _, _ = s.Current()
	if view.TotalCount != 1 {
		t.Fatalf("old day leaked into the list: %d items", view.TotalCount)
	}
}

func TestReportStateRecomputes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := ledger.New(memory.New())
	add(t, l, "100", core.Food, now)
	add(t, l, "1000", core.Food, now.AddDate(0, 0, -7))

	s := NewReportState(ctx, l, now)
	defer s.Close()
	waitFor(t, s.Updates(), atVersion(2))

	add(t, l, "50", core.Food, now.AddDate(0, 0, -1))
	add(t, l, "200", core.Travel, now.AddDate(0, 0, -2))
	waitFor(t, s.Updates(), atVersion(4))

	r, version, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if version != 4 {
		t.Fatalf("version = %d", version)
	}
	if !r.SevenDayTotal.Equal(decimal.NewFromInt(350)) || !r.DailyAverage.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("total %s average %s", r.SevenDayTotal, r.DailyAverage)
	}
	if r.TopCategory == nil || *r.TopCategory != core.Travel {
		t.Fatalf("top category = %v", r.TopCategory)
	}
	if !s.Window().Contains(now) {
		t.Fatal("window must contain the anchor time")
	}
}

func TestTodayTotal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := ledger.New(memory.New())

	s := NewTodayTotal(ctx, l, now)
	defer s.Close()
	waitFor(t, s.Updates(), atVersion(0))
	if total, _, _ := s.Current(); !total.IsZero() {
		t.Fatalf("empty day total = %s", total)
	}

	add(t, l, "4.20", core.Food, now.Add(-time.Hour))
	add(t, l, "1.80", core.Food, now.AddDate(0, 0, -1))
	waitFor(t, s.Updates(), atVersion(1))
	total, _, err := s.Current()
	if err != nil || !total.Equal(decimal.RequireFromString("4.2")) {
		t.Fatalf("total = %s, %v", total, err)
	}
}

func TestListStateDropsSnapshotsFromReplacedSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := ledger.New(memory.New())
	add(t, l, "10", core.Food, now)

	s := NewListState(ctx, l, Selection{Date: now}, nil)
	defer s.Close()
	waitFor(t, s.Updates(), atVersion(1))

	s.mu.Lock()
	stale := s.subID - 1
	s.mu.Unlock()
	s.apply(stale, ledger.Snapshot{Version: 99, Expenses: []core.Expense{
		{ID: 7, Title: "late", Amount: decimal.NewFromInt(500), Category: core.Travel, Date: now},
	}})

	view, _, err := s.Current()
	if err != nil {
		t.Fatal(err)
	}
	if view.TotalCount != 1 || !view.TotalAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stale snapshot applied: count=%d total=%s", view.TotalCount, view.TotalAmount)
	}
}

func TestListStateSetDateClearsPreviousError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := ledger.New(memory.New())

	s := NewListState(ctx, l, Selection{Date: now}, nil)
	defer s.Close()
	waitFor(t, s.Updates(), atVersion(0))

	s.mu.Lock()
	s.err = errors.New("query failed")
	s.mu.Unlock()

	s.SetDate(now.AddDate(0, 0, -1))
	if _, sel, err := s.Current(); err != nil {
		t.Fatalf("error from %s survived the date change: %v", now.Format(time.DateOnly), err)
	} else if !sel.Date.Equal(now.AddDate(0, 0, -1)) {
		t.Fatalf("date = %v", sel.Date)
	}
}
