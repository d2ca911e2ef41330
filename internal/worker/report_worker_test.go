package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/services"
	"expensetracker/internal/storage/memory"
)

// fakeConsumer delivers its messages, records the handler results and then
// blocks until the context ends.
type fakeConsumer struct {
	messages []*amqp.ExpenseRecordedMessage
	results  []error
	cancel   context.CancelFunc
}

func (f *fakeConsumer) ConsumeExpenseRecorded(ctx context.Context, handler amqp.Handler) error {
	for _, m := range f.messages {
		f.results = append(f.results, handler(ctx, m))
	}
	if f.cancel != nil {
		f.cancel()
	}
	<-ctx.Done()
	return ctx.Err()
}

func seeded(t *testing.T) (*ledger.Ledger, core.Expense) {
	t.Helper()
	l := ledger.New(memory.New())
	e, err := l.Insert(context.Background(), core.Expense{
		Title:    "Lunch",
		Amount:   decimal.RequireFromString("12.50"),
		Category: core.Food,
		Date:     time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return l, e
}

func TestRunConsumesUntilCancelled(t *testing.T) {
	l, e := seeded(t)
	dir := t.TempDir()
	proc := services.NewReportProcessor(l, export.NewRunner(dir), nil, services.ReportProcessorConfig{PollInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := &fakeConsumer{
		messages: []*amqp.ExpenseRecordedMessage{
			amqp.NewExpenseRecordedMessage(e, 1),
			amqp.NewExpenseRecordedMessage(core.Expense{ID: 999, Date: time.Now(), Amount: decimal.NewFromInt(1), Category: core.Food}, 2),
		},
		cancel: cancel,
	}
	w := NewReportWorker(consumer, proc, l, nil)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run returned %v after cancellation", err)
	}
	for i, err := range consumer.results {
		if err != nil {
			t.Errorf("message %d: %v", i, err)
		}
	}
	if got := w.Stats(); got != (Stats{Processed: 1, Skipped: 1}) {
		t.Errorf("stats = %+v", got)
	}
	if proc.IsRunning() {
		t.Error("processor still running after Run returned")
	}
	for _, name := range []string{export.CSVFileName, export.PDFFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
}

func TestHandleExpenseRecordedRequeuesOnExportFailure(t *testing.T) {
	l, e := seeded(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	proc := services.NewReportProcessor(l, export.NewRunner(filepath.Join(blocker, "exports")), nil, services.ReportProcessorConfig{}, nil)
	w := NewReportWorker(nil, proc, l, nil)

	err := w.HandleExpenseRecorded(context.Background(), amqp.NewExpenseRecordedMessage(e, 1))
	if !errors.Is(err, export.ErrExport) {
		t.Fatalf("error = %v, want ErrExport", err)
	}
	if got := w.Stats(); got.Failed != 1 || got.Processed != 0 {
		t.Errorf("stats = %+v", got)
	}
}

func TestRunPropagatesConsumerError(t *testing.T) {
	l, _ := seeded(t)
	proc := services.NewReportProcessor(l, export.NewRunner(t.TempDir()), nil, services.ReportProcessorConfig{PollInterval: time.Hour}, nil)
	boom := errors.New("channel closed")
	w := NewReportWorker(consumerFunc(func(context.Context, amqp.Handler) error { return boom }), proc, l, nil)

	if err := w.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if proc.IsRunning() {
		t.Error("processor still running")
	}
}

type consumerFunc func(context.Context, amqp.Handler) error

func (f consumerFunc) ConsumeExpenseRecorded(ctx context.Context, h amqp.Handler) error {
	return f(ctx, h)
}

func TestRunWithoutConsumerRefreshesUntilCancelled(t *testing.T) {
	l, _ := seeded(t)
	dir := t.TempDir()
	proc := services.NewReportProcessor(l, export.NewRunner(dir), nil, services.ReportProcessorConfig{PollInterval: time.Hour}, nil)
	w := NewReportWorker(nil, proc, l, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, export.CSVFileName)); err != nil {
		t.Fatalf("startup sync did not export: %v", err)
	}
}
