// Package ledger puts change notification on top of a storage.Store.
//
// Subscribers receive an immutable snapshot of their window straight away
// and again after every insert that lands inside it. Each subscription has
// a one-slot mailbox: a snapshot nobody has read yet is replaced by the
// newer one, so consumers only ever see the latest state.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// Snapshot is the content of a window at one ledger version. Err is set
// when the refresh query failed; Expenses is then nil.
type Snapshot struct {
	Version  uint64
	Window   core.Window
	Expenses []core.Expense
	Err      error
}

// SumSnapshot is the total of a window at one ledger version. Total is nil
// when the window holds no expenses.
type SumSnapshot struct {
	Version uint64
	Window  core.Window
	Total   *decimal.Decimal
	Err     error
}

type subscriber interface {
	covers(t time.Time) bool
	refresh(ctx context.Context, version uint64)
}

type Ledger struct {
	store  storage.Store
	logger *log.Logger

	// writeMu serialises inserts with subscription refreshes so snapshots
	// are delivered in version order.
	writeMu sync.Mutex

	mu      sync.Mutex
	version uint64
	subs    map[subscriber]struct{}
}

type Option func(*Ledger)

func WithLogger(l *log.Logger) Option {
	return func(led *Ledger) { led.logger = l.WithComponent(log.ComponentLedger) }
}

func New(store storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: log.Discard(),
		subs:   make(map[subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Version is bumped by every successful insert.
func (l *Ledger) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Insert validates and stores e, then refreshes every subscription whose
// window contains e's date. Nothing is stored or published on failure.
func (l *Ledger) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	stored, err := l.store.Insert(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}

	l.mu.Lock()
	l.version++
	version := l.version
	var targets []subscriber
	for s := range l.subs {
		if s.covers(stored.Date) {
			targets = append(targets, s)
		}
	}
	l.mu.Unlock()

	refreshCtx := context.WithoutCancel(ctx)
	for _, s := range targets {
		s.refresh(refreshCtx, version)
	}
	l.logger.DebugContext(ctx, "Ledger advanced",
		log.FieldVersion, version, log.FieldExpenseID, stored.ID, "subscribers", len(targets))
	return stored, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (core.Expense, error) {
	return l.store.Get(ctx, id)
}

// Query returns a one-off snapshot of w.
func (l *Ledger) Query(ctx context.Context, w core.Window) (Snapshot, error) {
	version := l.Version()
	items, err := l.store.QueryByDateRange(ctx, w.Start, w.End)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Version: version, Window: w, Expenses: items}, nil
}

// Sum returns a one-off total of w.
func (l *Ledger) Sum(ctx context.Context, w core.Window) (SumSnapshot, error) {
	version := l.Version()
	total, err := l.store.SumAmountByDateRange(ctx, w.Start, w.End)
	if err != nil {
		return SumSnapshot{}, err
	}
	return SumSnapshot{Version: version, Window: w, Total: total}, nil
}

// Subscribe delivers snapshots of w until ctx is done or the subscription
// is closed. The first snapshot is already in the mailbox on return.
func (l *Ledger) Subscribe(ctx context.Context, w core.Window) *Subscription[Snapshot] {
	return subscribe(ctx, l, w, func(ctx context.Context, version uint64) Snapshot {
		items, err := l.store.QueryByDateRange(ctx, w.Start, w.End)
		if err != nil {
			l.logger.ErrorContext(ctx, "Subscription refresh failed",
				log.FieldWindow, w.Start.Format(time.DateOnly), log.FieldError, err)
		}
		return Snapshot{Version: version, Window: w, Expenses: items, Err: err}
	})
}

// SubscribeSum is Subscribe for the window total.
func (l *Ledger) SubscribeSum(ctx context.Context, w core.Window) *Subscription[SumSnapshot] {
	return subscribe(ctx, l, w, func(ctx context.Context, version uint64) SumSnapshot {
		total, err := l.store.SumAmountByDateRange(ctx, w.Start, w.End)
		if err != nil {
			l.logger.ErrorContext(ctx, "Sum subscription refresh failed",
				log.FieldWindow, w.Start.Format(time.DateOnly), log.FieldError, err)
		}
		return SumSnapshot{Version: version, Window: w, Total: total, Err: err}
	})
}

func (l *Ledger) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Ledger) remove(s subscriber) {
	l.mu.Lock()
	delete(l.subs, s)
	l.mu.Unlock()
}

func (l *Ledger) Close() error {
	return l.store.Close()
}
