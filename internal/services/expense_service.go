package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
)

// ReceiptSaver copies receipt images into tracker storage.
type ReceiptSaver interface {
	Save(src string, at time.Time) (string, error)
	SaveFrom(r io.Reader, name string, at time.Time) (string, error)
	Discard(path string) error
}

// EventPublisher announces stored expenses to other processes.
type EventPublisher interface {
	PublishExpenseRecorded(ctx context.Context, e core.Expense, version uint64) error
}

// Receipt is an optional image attached to a new expense: either a file
// already on disk or an upload stream.
type Receipt struct {
	Path   string
	Reader io.Reader
	Name   string
}

func (r *Receipt) empty() bool {
	return r == nil || (r.Path == "" && r.Reader == nil)
}

// CreateResult is the stored expense plus the confirmation shown to the user.
type CreateResult struct {
	Expense core.Expense `json:"expense"`
	Message string       `json:"message"`
}

// ExpenseService records expenses: validate, copy the receipt, insert,
// then announce.
type ExpenseService struct {
	ledger     *ledger.Ledger
	receipts   ReceiptSaver
	publisher  EventPublisher
	logger     *log.Logger
	structured *log.StructuredLogger
	now        func() time.Time
}

type Option func(*ExpenseService)

func WithReceipts(r ReceiptSaver) Option {
	return func(s *ExpenseService) { s.receipts = r }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = l.WithComponent(log.ComponentExpense) }
}

// WithClock overrides the time source used to date new expenses.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(l *ledger.Ledger, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		ledger: l,
		logger: log.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.structured = log.NewStructuredLogger(s.logger)
	return s
}

// Create validates form and records it dated now. A validation failure
// returns *core.ValidationError and writes nothing. A receipt that cannot be
// copied fails the whole operation before the insert; a failed insert
// discards the copied receipt. Publishing the event is best effort.
func (s *ExpenseService) Create(ctx context.Context, form core.ExpenseForm, receipt *Receipt) (CreateResult, error) {
	now := s.now()
	e, err := form.Expense(now)
	if err != nil {
		return CreateResult{}, err
	}

	if !receipt.empty() {
		if s.receipts == nil {
			return CreateResult{}, errors.New("receipt attached but receipt storage is not configured")
		}
		var path string
		if receipt.Reader != nil {
			path, err = s.receipts.SaveFrom(receipt.Reader, receipt.Name, now)
		} else {
			path, err = s.receipts.Save(receipt.Path, now)
		}
		if err != nil {
			s.structured.LogError(ctx, "Receipt copy failed", err, log.OpCreate, nil)
			return CreateResult{}, fmt.Errorf("save receipt: %w", err)
		}
		e.ReceiptImagePath = path
	}

	stored, err := s.ledger.Insert(ctx, e)
	if err != nil {
		s.structured.LogError(ctx, "Failed to record expense", err, log.OpCreate, nil)
		if e.ReceiptImagePath != "" {
			if derr := s.receipts.Discard(e.ReceiptImagePath); derr != nil {
				s.logger.WarnContext(ctx, "Failed to discard orphaned receipt",
					log.FieldReceipt, e.ReceiptImagePath, log.FieldError, derr)
			}
		}
		return CreateResult{}, fmt.Errorf("record expense: %w", err)
	}
	s.structured.LogExpenseRecorded(ctx, stored.ID, stored.Amount, string(stored.Category))

	if s.publisher != nil {
		if err := s.publisher.PublishExpenseRecorded(ctx, stored, s.ledger.Version()); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish expense.recorded",
				log.FieldExpenseID, stored.ID, log.FieldError, err)
		}
	}

	return CreateResult{Expense: stored, Message: SuccessMessage(stored)}, nil
}

// SuccessMessage is the confirmation shown after an expense is recorded,
// with the amount rounded to whole units.
func SuccessMessage(e core.Expense) string {
	return fmt.Sprintf("%s%s %s expense recorded", export.CurrencySymbol, core.FormatWhole(e.Amount), e.Category)
}
