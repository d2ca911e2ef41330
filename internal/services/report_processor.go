package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/sheets"
)

// ReportProcessorConfig holds configuration for the report processor
type ReportProcessorConfig struct {
	// PollInterval is how often the report is rebuilt without a trigger
	// (default: 5m). It also rolls the window over at midnight.
	PollInterval time.Duration
}

func DefaultReportProcessorConfig() ReportProcessorConfig {
	return ReportProcessorConfig{PollInterval: 5 * time.Minute}
}

// ReportProcessor rebuilds the seven day report exports whenever the
// ledger changes. It is driven by expense.recorded messages and by a
// periodic refresh that covers lost messages and day changes.
type ReportProcessor struct {
	ledger    *ledger.Ledger
	exporter  *export.Runner
	publisher sheets.ReportPublisher
	config    ReportProcessorConfig
	logger    *log.Logger
	now       func() time.Time

	runMu     sync.Mutex
	lastBuilt string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReportProcessor creates a processor. publisher may be nil.
func NewReportProcessor(l *ledger.Ledger, exporter *export.Runner, publisher sheets.ReportPublisher, config ReportProcessorConfig, logger *log.Logger) *ReportProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultReportProcessorConfig().PollInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportProcessor{
		ledger:    l,
		exporter:  exporter,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleExpenseRecorded rebuilds the report when the expense falls inside
// the current window. Returning an error requeues the message.
func (p *ReportProcessor) HandleExpenseRecorded(ctx context.Context, msg *amqp.ExpenseRecordedMessage) error {
	w := core.WeekWindow(p.now())
	if !w.Contains(msg.Date()) {
		p.logger.DebugContext(ctx, "Expense outside report window, skipping",
			log.FieldExpenseID, msg.ID, log.FieldWindow, w.Start.Format(time.DateOnly))
		return nil
	}
	_, err := p.Rebuild(ctx, true)
	return err
}

// Rebuild recomputes and exports the report. Without force the export is
// skipped when the window and its contents are unchanged since the last
// successful run. Contents are compared rather than ledger versions because
// the worker usually shares the database with another process.
func (p *ReportProcessor) Rebuild(ctx context.Context, force bool) (aggregate.Report, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	agg := aggregate.NewReportAggregator(p.now())
	w := agg.Window()
	snap, err := p.ledger.Query(ctx, w)
	if err != nil {
		return aggregate.Report{}, fmt.Errorf("query report window: %w", err)
	}
	report := agg.Compute(snap.Expenses)

	fp := fingerprint(w, snap.Expenses)
	if !force && fp == p.lastBuilt {
		return report, nil
	}

	files, err := p.exporter.Export(ctx, report)
	if err != nil {
		return report, err
	}

	fields := log.NewFields().WithWindow(w.Start).WithOperation(log.OpExport)
	if p.publisher != nil {
		ref, err := p.publisher.PublishReport(ctx, report)
		if err != nil {
			// The exports on disk are already written.
			p.logger.WarnContext(ctx, "Failed to publish report to sheets", fields.WithError(err).ToSlice()...)
		} else {
			fields["sheets_range"] = ref
		}
	}

	p.lastBuilt = fp
	p.logger.InfoContext(ctx, "Report rebuilt",
		append(fields.ToSlice(), log.FieldVersion, snap.Version, "csv", files.CSV, "pdf", files.PDF)...)
	return report, nil
}

// Start begins the refresh loop. Returns an error if already running.
func (p *ReportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("report processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Report processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to end. It is
// safe to call repeatedly and concurrently; a Stop that timed out can be
// retried.
func (p *ReportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	doneCh := p.doneCh
	p.mu.Unlock()

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Report processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Report processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReportProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.stopCh = nil
		p.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *ReportProcessor) refresh(ctx context.Context) {
	if _, err := p.Rebuild(ctx, false); err != nil {
		p.logger.ErrorContext(ctx, "Periodic report rebuild failed", log.FieldError, err)
	}
}

// fingerprint identifies the report input. Expenses are immutable, so the
// window plus the sorted ids is enough.
func fingerprint(w core.Window, expenses []core.Expense) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", w.Start.UnixMilli())
	ids := make([]int64, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	slices.Sort(ids)
	for _, id := range ids {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte(',')
	}
	return b.String()
}
