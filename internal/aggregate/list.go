package aggregate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

type (
	GroupBy int
	SortBy  int
)

const (
	GroupCategory GroupBy = iota
	GroupTime
)

const (
	SortDate SortBy = iota
	SortAmount
)

// AllExpensesKey names the single bucket produced by GroupTime.
const AllExpensesKey = "All Expenses"

func (g GroupBy) String() string {
	if g == GroupTime {
		return "time"
	}
	return "category"
}

// Toggle flips between the two grouping modes.
func (g GroupBy) Toggle() GroupBy {
	if g == GroupTime {
		return GroupCategory
	}
	return GroupTime
}

func ParseGroupBy(s string) (GroupBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "category":
		return GroupCategory, nil
	case "time":
		return GroupTime, nil
	}
	return GroupCategory, fmt.Errorf("unknown group %q", s)
}

func (s SortBy) String() string {
	if s == SortAmount {
		return "amount"
	}
	return "date"
}

func (s SortBy) Toggle() SortBy {
	if s == SortAmount {
		return SortDate
	}
	return SortAmount
}

func ParseSortBy(s string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date":
		return SortDate, nil
	case "amount":
		return SortAmount, nil
	}
	return SortDate, fmt.Errorf("unknown sort %q", s)
}

// Bucket is one display group with its aggregates.
type Bucket struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
	Items []core.Expense  `json:"items"`
}

// ListView is the list screen view model.
type ListView struct {
	TotalCount  int                                 `json:"total_count"`
	TotalAmount decimal.Decimal                     `json:"total_amount"`
	GroupBy     GroupBy                             `json:"-"`
	SortBy      SortBy                              `json:"-"`
	Groups      *OrderedMap[string, []core.Expense] `json:"groups"`
}

// Buckets returns the groups with per-group totals in display order.
func (v ListView) Buckets() []Bucket {
	out := make([]Bucket, 0, v.Groups.Len())
	v.Groups.Each(func(k string, items []core.Expense) bool {
		total := decimal.Zero
		for _, e := range items {
			total = total.Add(e.Amount)
		}
		out = append(out, Bucket{Key: k, Total: total, Count: len(items), Items: items})
		return true
	})
	return out
}

// ComputeList sorts and groups one day's expenses. The input slice is not
// modified and the result shares no backing arrays with it.
func ComputeList(expenses []core.Expense, group GroupBy, sortBy SortBy) ListView {
	sorted := slices.Clone(expenses)
	switch sortBy {
	case SortAmount:
		slices.SortStableFunc(sorted, func(a, b core.Expense) int {
			return b.Amount.Cmp(a.Amount)
		})
	default:
		slices.SortStableFunc(sorted, func(a, b core.Expense) int {
			return b.Date.Compare(a.Date)
		})
	}

	view := ListView{
		TotalCount:  len(sorted),
		TotalAmount: decimal.Zero,
		GroupBy:     group,
		SortBy:      sortBy,
		Groups:      NewOrderedMap[string, []core.Expense](),
	}
	for _, e := range sorted {
		view.TotalAmount = view.TotalAmount.Add(e.Amount)
		key := AllExpensesKey
		if group == GroupCategory {
			key = string(e.Category)
		}
		items, _ := view.Groups.Get(key)
		view.Groups.Set(key, append(items, e))
	}
	return view
}

// ListAggregator keeps the most recent list result for re-display.
type ListAggregator struct {
	last ListView
}

func (a *ListAggregator) Compute(expenses []core.Expense, group GroupBy, sortBy SortBy) ListView {
	v := ComputeList(expenses, group, sortBy)
	a.last = v.Clone()
	return v
}

// Last returns the previous result, or an empty view before the first call.
func (a *ListAggregator) Last() ListView {
	if a.last.Groups == nil {
		return ListView{TotalAmount: decimal.Zero, Groups: NewOrderedMap[string, []core.Expense]()}
	}
	return a.last.Clone()
}

// Clone returns a copy that shares no maps or slices with v.
func (v ListView) Clone() ListView {
	c := v
	c.Groups = v.Groups.Clone(func(items []core.Expense) []core.Expense {
		return append([]core.Expense(nil), items...)
	})
	return c
}
