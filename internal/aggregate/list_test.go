package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

var day = time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)

func exp(id int64, amount string, cat core.Category, at time.Time) core.Expense {
	return core.Expense{
		ID:       id,
		Title:    "expense",
		Amount:   decimal.RequireFromString(amount),
		Category: cat,
		Date:     at,
	}
}

func sampleDay() []core.Expense {
	return []core.Expense{
		exp(1, "12.50", core.Food, day.Add(9*time.Hour)),
		exp(2, "40", core.Travel, day.Add(11*time.Hour)),
		exp(3, "7.25", core.Food, day.Add(13*time.Hour)),
		exp(4, "40", core.Utility, day.Add(8*time.Hour)),
		exp(5, "3", core.Staff, day.Add(18*time.Hour)),
	}
}

func ids(items []core.Expense) []int64 {
	out := make([]int64, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestComputeListTotals(t *testing.T) {
	view := ComputeList(sampleDay(), GroupCategory, SortDate)
	if view.TotalCount != 5 {
		t.Fatalf("expected 5 expenses, got %d", view.TotalCount)
	}
	if !view.TotalAmount.Equal(decimal.RequireFromString("102.75")) {
		t.Fatalf("unexpected total %s", view.TotalAmount)
	}
}

func TestComputeListPreservesMultiset(t *testing.T) {
	in := sampleDay()
	for _, g := range []GroupBy{GroupCategory, GroupTime} {
		for _, s := range []SortBy{SortDate, SortAmount} {
			view := ComputeList(in, g, s)
			seen := map[int64]int{}
			n := 0
			sum := decimal.Zero
			for _, b := range view.Buckets() {
				for _, e := range b.Items {
					seen[e.ID]++
					n++
				}
				sum = sum.Add(b.Total)
			}
			if n != len(in) || len(seen) != len(in) {
				t.Fatalf("%s/%s: groups hold %d items (%d distinct), want %d", g, s, n, len(seen), len(in))
			}
			if !sum.Equal(view.TotalAmount) {
				t.Fatalf("%s/%s: bucket totals %s != total %s", g, s, sum, view.TotalAmount)
			}
		}
	}
}

func TestComputeListSortByAmountIsStable(t *testing.T) {
	view := ComputeList(sampleDay(), GroupTime, SortAmount)
	items, ok := view.Groups.Get(AllExpensesKey)
	if !ok {
		t.Fatalf("missing %q bucket", AllExpensesKey)
	}
	// 2 and 4 tie at 40 and keep their input order.
	want := []int64{2, 4, 1, 3, 5}
	if got := ids(items); !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestComputeListSortByDate(t *testing.T) {
	view := ComputeList(sampleDay(), GroupTime, SortDate)
	items, _ := view.Groups.Get(AllExpensesKey)
	want := []int64{5, 3, 2, 1, 4}
	if got := ids(items); !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Date.After(items[i-1].Date) {
			t.Fatalf("item %d is newer than its predecessor", i)
		}
	}
}

func TestComputeListGrouping(t *testing.T) {
	byTime := ComputeList(sampleDay(), GroupTime, SortAmount)
	if byTime.Groups.Len() != 1 || byTime.Groups.Keys()[0] != AllExpensesKey {
		t.Fatalf("time grouping keys = %v", byTime.Groups.Keys())
	}

	byCat := ComputeList(sampleDay(), GroupCategory, SortAmount)
	want := []string{"Travel", "Utility", "Food", "Staff"}
	keys := byCat.Groups.Keys()
	if len(keys) != len(want) {
		t.Fatalf("category keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("category keys = %v, want %v", keys, want)
		}
	}
	food := byCat.Buckets()[2]
	if food.Count != 2 || !food.Total.Equal(decimal.RequireFromString("19.75")) {
		t.Fatalf("unexpected food bucket %+v", food)
	}
	if got := ids(food.Items); !equalIDs(got, []int64{1, 3}) {
		t.Fatalf("food bucket order = %v", got)
	}
}

func TestComputeListEmpty(t *testing.T) {
	view := ComputeList(nil, GroupCategory, SortDate)
	if view.TotalCount != 0 || !view.TotalAmount.IsZero() || view.Groups.Len() != 0 {
		t.Fatalf("expected empty view, got %+v", view)
	}
	if b := view.Buckets(); len(b) != 0 {
		t.Fatalf("expected no buckets, got %d", len(b))
	}
}

func TestComputeListDoesNotMutateInput(t *testing.T) {
	in := sampleDay()
	before := ids(in)
	ComputeList(in, GroupCategory, SortAmount)
	if got := ids(in); !equalIDs(got, before) {
		t.Fatalf("input reordered: %v", got)
	}
}

func TestListAggregatorLast(t *testing.T) {
	var agg ListAggregator
	if v := agg.Last(); v.TotalCount != 0 || v.Groups.Len() != 0 {
		t.Fatalf("expected empty view before first compute")
	}
	agg.Compute(sampleDay(), GroupTime, SortDate)
	if agg.Last().TotalCount != 5 || agg.Last().GroupBy != GroupTime {
		t.Fatalf("last result not retained")
	}
}

func TestParseAndToggle(t *testing.T) {
	tests := []struct {
		in      string
		group   GroupBy
		wantErr bool
	}{
		{"", GroupCategory, false},
		{"category", GroupCategory, false},
		{" TIME ", GroupTime, false},
		{"weekday", GroupCategory, true},
	}
	for _, tt := range tests {
		g, err := ParseGroupBy(tt.in)
		if (err != nil) != tt.wantErr || g != tt.group {
			t.Errorf("ParseGroupBy(%q) = %v, %v", tt.in, g, err)
		}
	}
	if s, err := ParseSortBy("amount"); err != nil || s != SortAmount {
		t.Errorf("ParseSortBy(amount) = %v, %v", s, err)
	}
	if _, err := ParseSortBy("title"); err == nil {
		t.Errorf("expected error for unknown sort")
	}
	if GroupCategory.Toggle() != GroupTime || GroupTime.Toggle() != GroupCategory {
		t.Errorf("group toggle broken")
	}
	if SortDate.Toggle() != SortAmount || SortAmount.Toggle() != SortDate {
		t.Errorf("sort toggle broken")
	}
}

func TestListAggregatorLastIsIndependent(t *testing.T) {
	var agg ListAggregator
	v := agg.Compute(sampleDay(), GroupCategory, SortAmount)
	v.Groups.Set("extra", nil)
	first := v.Groups.Keys()[0]
	items, _ := v.Groups.Get(first)
	items[0].Title = "changed"

	last := agg.Last()
	if last.Groups.Len() != v.Groups.Len()-1 {
		t.Fatalf("caller mutation reached Last: %v", last.Groups.Keys())
	}
	got, _ := last.Groups.Get(first)
	if got[0].Title == "changed" {
		t.Fatal("Last shares item slices with the returned view")
	}
}
