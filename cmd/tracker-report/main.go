// Command tracker-report prints one day's expense list and the seven day
// report from the configured store, and optionally writes the exports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/cli"
	"expensetracker/internal/core"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/viewstate"
)

const waitTimeout = 10 * time.Second

type options struct {
	date    time.Time
	groupBy aggregate.GroupBy
	sortBy  aggregate.SortBy
	share   bool
	export  bool
}

func main() {
	var (
		date    = flag.String("date", "", "day to list, YYYY-MM-DD (default today)")
		groupBy = flag.String("group", "category", "list grouping: category or time")
		sortBy  = flag.String("sort", "date", "list order: date or amount")
		share   = flag.Bool("share", false, "print the share message")
		doExp   = flag.Bool("export", false, "write the CSV and PDF exports")
	)
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	opts, err := parseOptions(*date, *groupBy, *sortBy, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	opts.share, opts.export = *share, *doExp

	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)

	runErr := run(ctx, res.Ledger, res.Exporter, opts, time.Now(), os.Stdout)
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", log.FieldError, err)
	}
	if runErr != nil {
		logger.Error("Report failed", log.FieldError, runErr)
		os.Exit(1)
	}
}

func parseOptions(date, group, sort string, now time.Time) (options, error) {
	opts := options{date: now}
	if date != "" {
		d, err := time.ParseInLocation(time.DateOnly, date, time.Local)
		if err != nil {
			return opts, fmt.Errorf("invalid -date %q: %w", date, err)
		}
		opts.date = d
	}
	var err error
	if opts.groupBy, err = aggregate.ParseGroupBy(group); err != nil {
		return opts, err
	}
	if opts.sortBy, err = aggregate.ParseSortBy(sort); err != nil {
		return opts, err
	}
	return opts, nil
}

func run(ctx context.Context, l *ledger.Ledger, exporter *export.Runner, opts options, now time.Time, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	list := viewstate.NewListState(ctx, l, viewstate.Selection{Date: opts.date, GroupBy: opts.groupBy, SortBy: opts.sortBy}, nil)
	defer list.Close()
	if err := waitFirst(ctx, list.Updates()); err != nil {
		return fmt.Errorf("load list: %w", err)
	}
	view, sel, err := list.Current()
	if err != nil {
		return err
	}
	printList(out, view, sel)

	rs := viewstate.NewReportState(ctx, l, now)
	defer rs.Close()
	if err := waitFirst(ctx, rs.Updates()); err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	report, _, err := rs.Current()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printReport(out, report)

	if opts.share {
		fmt.Fprintln(out)
		fmt.Fprintln(out, export.ToShareText(report))
	}
	if opts.export {
		files, err := exporter.Export(ctx, report)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nWrote %s\nWrote %s\n", files.CSV, files.PDF)
	}
	return nil
}

func waitFirst(ctx context.Context, updates <-chan viewstate.Update) error {
	select {
	case u := <-updates:
		return u.Err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("timed out waiting for the ledger")
		}
		return ctx.Err()
	}
}

func printList(out io.Writer, view aggregate.ListView, sel viewstate.Selection) {
	fmt.Fprintf(out, "%s: %d expenses, total %s\n",
		sel.Date.Format(time.DateOnly), view.TotalCount, view.TotalAmount.StringFixed(2))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, b := range view.Buckets() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Key, b.Count, b.Total.StringFixed(2))
		for _, e := range b.Items {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Date.Format("15:04"), e.Title, e.Amount.StringFixed(2))
		}
	}
	tw.Flush()
}

func printReport(out io.Writer, r aggregate.Report) {
	top := "-"
	if r.TopCategory != nil {
		top = string(*r.TopCategory)
	}
	highest := "-"
	if r.HighestSpendingDay != nil {
		highest = fmt.Sprintf("%s (%s)", r.HighestSpendingDay.Amount.StringFixed(2), core.DayLabel(r.HighestSpendingDay.Date))
	}
	fmt.Fprintf(out, "Last 7 days: total %s, daily average %s\n", core.FormatWhole(r.SevenDayTotal), core.FormatWhole(r.DailyAverage))
	fmt.Fprintf(out, "Top category: %s\nHighest expense: %s\n", top, highest)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range r.Series() {
		fmt.Fprintf(tw, "%s\t%s\n", p.Label, p.Total.StringFixed(2))
	}
	for _, row := range r.CategoryRows() {
		fmt.Fprintf(tw, "%s\t%s\t%s%%\n", row.Category, row.Total.StringFixed(2), row.Share.StringFixed(1))
	}
	tw.Flush()
}
