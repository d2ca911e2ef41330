package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

var (
	windowDays = decimal.NewFromInt(core.WindowDays)
	hundred    = decimal.NewFromInt(100)
)

// CategoryTotal is the spend and expense count of one category.
type CategoryTotal struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// DayPoint is one bar of the per-day chart.
type DayPoint struct {
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

// CategoryRow is one summary row of the category breakdown.
type CategoryRow struct {
	Category core.Category   `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	Share    decimal.Decimal `json:"share"`
	Color    string          `json:"color"`
}

// Report is the seven day report view model.
//
// TopCategory and HighestSpendingDay are nil when the window holds no
// expenses. HighestSpendingDay is the single largest expense, not a day
// aggregate.
type Report struct {
	Window             core.Window                               `json:"-"`
	SevenDayTotal      decimal.Decimal                           `json:"seven_day_total"`
	DailyAverage       decimal.Decimal                           `json:"daily_average"`
	PerDayTotals       *OrderedMap[string, decimal.Decimal]      `json:"per_day_totals"`
	PerCategoryTotals  *OrderedMap[core.Category, CategoryTotal] `json:"per_category_totals"`
	TopCategory        *core.Category                            `json:"top_category"`
	HighestSpendingDay *core.Expense                             `json:"highest_spending_day"`
	SevenDaysDates     []string                                  `json:"seven_days_dates"`
}

// Series zips the seven day labels with the per-day totals, filling days
// without expenses with zero.
func (r Report) Series() []DayPoint {
	out := make([]DayPoint, 0, len(r.SevenDaysDates))
	for _, label := range r.SevenDaysDates {
		total, ok := r.PerDayTotals.Get(label)
		if !ok {
			total = decimal.Zero
		}
		out = append(out, DayPoint{Label: label, Total: total})
	}
	return out
}

// Share returns the category's percentage of the seven day total.
func (r Report) Share(c core.Category) decimal.Decimal {
	ct, ok := r.PerCategoryTotals.Get(c)
	if !ok || r.SevenDayTotal.IsZero() {
		return decimal.Zero
	}
	return ct.Total.Mul(hundred).Div(r.SevenDayTotal)
}

// CategoryRows lists every category of the window in first-seen order.
func (r Report) CategoryRows() []CategoryRow {
	rows := make([]CategoryRow, 0, r.PerCategoryTotals.Len())
	r.PerCategoryTotals.Each(func(c core.Category, ct CategoryTotal) bool {
		rows = append(rows, CategoryRow{
			Category: c,
			Total:    ct.Total,
			Count:    ct.Count,
			Share:    r.Share(c),
			Color:    c.Color(),
		})
		return true
	})
	return rows
}

// ReportAggregator computes reports for a window fixed at construction.
// It does not roll forward as time passes; build a new one for a new day.
type ReportAggregator struct {
	window core.Window
	labels []string
	last   *Report
}

func NewReportAggregator(now time.Time) *ReportAggregator {
	w := core.WeekWindow(now)
	days := w.Days()
	labels := make([]string, len(days))
	for i, d := range days {
		labels[i] = core.DayLabel(d)
	}
	return &ReportAggregator{window: w, labels: labels}
}

func (a *ReportAggregator) Window() core.Window {
	return a.window
}

// Last returns the most recent report, computing an empty one if Compute
// has not been called yet.
func (a *ReportAggregator) Last() Report {
	if a.last == nil {
		return a.Compute(nil)
	}
	return a.last.Clone()
}

// Compute derives the report from a snapshot of the window. Expenses dated
// outside the window are ignored. Ties for the top category and for the
// highest expense go to whichever was encountered first in input order.
func (a *ReportAggregator) Compute(expenses []core.Expense) Report {
	loc := a.window.Start.Location()
	r := Report{
		Window:            a.window,
		SevenDayTotal:     decimal.Zero,
		PerDayTotals:      NewOrderedMap[string, decimal.Decimal](),
		PerCategoryTotals: NewOrderedMap[core.Category, CategoryTotal](),
		SevenDaysDates:    append([]string(nil), a.labels...),
	}

	for i := range expenses {
		e := expenses[i]
		if !a.window.Contains(e.Date) {
			continue
		}
		r.SevenDayTotal = r.SevenDayTotal.Add(e.Amount)

		label := core.DayLabel(e.Date.In(loc))
		day, ok := r.PerDayTotals.Get(label)
		if !ok {
			day = decimal.Zero
		}
		r.PerDayTotals.Set(label, day.Add(e.Amount))

		ct, ok := r.PerCategoryTotals.Get(e.Category)
		if !ok {
			ct.Total = decimal.Zero
		}
		ct.Total = ct.Total.Add(e.Amount)
		ct.Count++
		r.PerCategoryTotals.Set(e.Category, ct)

		if r.HighestSpendingDay == nil || e.Amount.GreaterThan(r.HighestSpendingDay.Amount) {
			r.HighestSpendingDay = &e
		}
	}

	r.DailyAverage = r.SevenDayTotal.Div(windowDays)

	var best decimal.Decimal
	r.PerCategoryTotals.Each(func(c core.Category, ct CategoryTotal) bool {
		if r.TopCategory == nil || ct.Total.GreaterThan(best) {
			r.TopCategory = &c
			best = ct.Total
		}
		return true
	})

	last := r.Clone()
	a.last = &last
	return r
}

// Clone returns a deep copy, so changes to one report never show in the
// other.
func (r Report) Clone() Report {
	c := r
	c.PerDayTotals = r.PerDayTotals.Clone(nil)
	c.PerCategoryTotals = r.PerCategoryTotals.Clone(nil)
	c.SevenDaysDates = append([]string(nil), r.SevenDaysDates...)
	if r.TopCategory != nil {
		top := *r.TopCategory
		c.TopCategory = &top
	}
	if r.HighestSpendingDay != nil {
		e := *r.HighestSpendingDay
		c.HighestSpendingDay = &e
	}
	return c
}
