// Package worker runs the background side of the tracker: it consumes
// expense.recorded messages and keeps the report exports current.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

// Consumer delivers expense.recorded messages until ctx ends.
type Consumer interface {
	ConsumeExpenseRecorded(ctx context.Context, handler amqp.Handler) error
}

// Stats counts handled messages since the worker was created.
type Stats struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// ReportWorker ties the message consumer to the report processor.
type ReportWorker struct {
	consumer    Consumer
	processor   *services.ReportProcessor
	ledger      *ledger.Ledger
	logger      *log.Logger
	stopTimeout time.Duration

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

func NewReportWorker(consumer Consumer, processor *services.ReportProcessor, l *ledger.Ledger, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportWorker{
		consumer:    consumer,
		processor:   processor,
		ledger:      l,
		logger:      logger.WithComponent(log.ComponentWorker),
		stopTimeout: 10 * time.Second,
	}
}

// HandleExpenseRecorded checks the message against the ledger and hands it
// to the processor. Messages for expenses this ledger does not know are
// dropped; any other failure is returned so the message is requeued.
func (w *ReportWorker) HandleExpenseRecorded(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	w.logger.InfoContext(ctx, "Processing expense.recorded",
		log.FieldExpenseID, msg.ID, log.FieldVersion, msg.Version)

	if _, err := w.ledger.Get(ctx, msg.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.skipped.Add(1)
			w.logger.WarnContext(ctx, "Expense not found in ledger, dropping message", log.FieldExpenseID, msg.ID)
			return nil
		}
		w.failed.Add(1)
		return fmt.Errorf("get expense %d: %w", msg.ID, err)
	}

	if err := w.processor.HandleExpenseRecorded(ctx, msg); err != nil {
		w.failed.Add(1)
		w.logger.ErrorContext(ctx, "Failed to rebuild report", log.FieldExpenseID, msg.ID, log.FieldError, err)
		return err
	}
	w.processed.Add(1)
	return nil
}

// StartupSync rebuilds the exports once so they reflect anything recorded
// while the worker was down.
func (w *ReportWorker) StartupSync(ctx context.Context) error {
	report, err := w.processor.Rebuild(ctx, true)
	if err != nil {
		return fmt.Errorf("startup report rebuild: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup report rebuild completed",
		"seven_day_total", report.SevenDayTotal.String(), "daily_average", report.DailyAverage.String())
	return nil
}

// Run performs the startup sync, starts the periodic refresh and consumes
// messages until ctx ends. A cancelled context is not an error. Without a
// consumer only the periodic refresh runs.
func (w *ReportWorker) Run(ctx context.Context) error {
	if err := w.StartupSync(ctx); err != nil {
		// The periodic refresh retries.
		w.logger.WarnContext(ctx, "Startup sync failed", log.FieldError, err)
	}
	if err := w.processor.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), w.stopTimeout)
		defer cancel()
		if err := w.processor.Stop(stopCtx); err != nil {
			w.logger.WarnContext(stopCtx, "Report processor did not stop cleanly", log.FieldError, err)
		}
	}()

	if w.consumer == nil {
		w.logger.InfoContext(ctx, "No message consumer configured, relying on periodic refresh")
		<-ctx.Done()
		return nil
	}
	err := w.consumer.ConsumeExpenseRecorded(ctx, w.HandleExpenseRecorded)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (w *ReportWorker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Skipped:   w.skipped.Load(),
		Failed:    w.failed.Load(),
	}
}
