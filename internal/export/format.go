// Package export renders a seven day report as CSV, PDF and plain text,
// and writes the file exports in the background.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"expensetracker/internal/aggregate"
)

// CurrencySymbol prefixes amounts in the share text.
const CurrencySymbol = "₹"

var csvHeader = []string{"Category", "Amount", "Count"}

// ToCSV renders the category table: a Category,Amount,Count header and one
// row per category in report order. Amounts are raw decimal strings.
func ToCSV(r aggregate.Report) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range r.CategoryRows() {
		rec := []string{row.Category.String(), row.Total.String(), strconv.Itoa(row.Count)}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("write csv row %s: %w", row.Category, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

func categoryLine(name, total string, count int, currency string) string {
	return fmt.Sprintf("%s: %s%s (%d items)", name, currency, total, count)
}

// PDFLines returns the text lines drawn on the PDF page, title first.
func PDFLines(r aggregate.Report) []string {
	lines := []string{
		"Expense Report",
		"7-Day Total: " + r.SevenDayTotal.String(),
		"Daily Average: " + r.DailyAverage.String(),
		"Category-wise Spending:",
	}
	for _, row := range r.CategoryRows() {
		lines = append(lines, categoryLine(row.Category.String(), row.Total.String(), row.Count, ""))
	}
	return lines
}

// ToPDFBytes renders the report summary on a single A4 page.
func ToPDFBytes(r aggregate.Report) ([]byte, error) {
	lines := PDFLines(r)

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(lines[0], false)
	pdf.SetCreator("expensetracker", false)
	pdf.SetCreationDate(r.Window.End)
	pdf.SetMargins(50, 50, 50)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 24)
	pdf.Cell(0, 30, tr(lines[0]))
	pdf.Ln(40)

	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 20, tr(lines[1]))
	pdf.Ln(20)
	pdf.Cell(0, 20, tr(lines[2]))
	pdf.Ln(40)

	pdf.SetFont("Helvetica", "", 14)
	for _, line := range lines[3:] {
		pdf.Cell(0, 20, tr(line))
		pdf.Ln(20)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// ToShareText renders the plain text message used for sharing a report.
func ToShareText(r aggregate.Report) string {
	var b strings.Builder
	b.WriteString("📊 Expense Report\n\n")
	fmt.Fprintf(&b, "Total Spending (Last 7 Days): %s%s\n", CurrencySymbol, r.SevenDayTotal)
	fmt.Fprintf(&b, "Daily Average: %s%s\n\n", CurrencySymbol, r.DailyAverage)
	b.WriteString("Category-wise Spending:\n")
	for _, row := range r.CategoryRows() {
		b.WriteString("- " + categoryLine(row.Category.String(), row.Total.String(), row.Count, CurrencySymbol) + "\n")
	}
	b.WriteString("\nView more insights in the app!")
	return b.String()
}
