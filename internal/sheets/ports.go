// Package sheets publishes report tables to a spreadsheet.
package sheets

import (
	"context"
	"time"

	"expensetracker/internal/aggregate"
)

// ReportPublisher replaces the content of a report sheet with the rows of r.
type ReportPublisher interface {
	PublishReport(ctx context.Context, r aggregate.Report) (rangeRef string, err error)
}

// ReportRows is the table written to the sheet: the CSV category table
// followed by the window and summary figures.
func ReportRows(r aggregate.Report) [][]any {
	rows := [][]any{{"Category", "Amount", "Count"}}
	for _, row := range r.CategoryRows() {
		rows = append(rows, []any{row.Category.String(), row.Total.String(), row.Count})
	}
	rows = append(rows,
		[]any{},
		[]any{"Window", r.Window.Start.Format(time.DateOnly), r.Window.End.AddDate(0, 0, -1).Format(time.DateOnly)},
		[]any{"7-Day Total", r.SevenDayTotal.String()},
		[]any{"Daily Average", r.DailyAverage.String()},
	)
	return rows
}
