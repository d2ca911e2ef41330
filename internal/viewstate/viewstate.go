// Package viewstate keeps derived view models current with the ledger.
//
// Each state owns a ledger subscription and recomputes its view model from
// the latest snapshot. Snapshots arriving from a subscription that has been
// replaced are dropped.
package viewstate

import (
	"context"
	"sync"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
)

// Update tells a watcher which generation and ledger version a new view
// model was computed from.
type Update struct {
	Generation uint64
	Version    uint64
	Err        error
}

// notifier is a one-slot, last-write-wins signal.
type notifier struct {
	ch chan Update
}

func newNotifier() notifier {
	return notifier{ch: make(chan Update, 1)}
}

func (n notifier) signal(u Update) {
	select {
	case <-n.ch:
	default:
	}
	select {
	case n.ch <- u:
	default:
	}
}

// Selection is the list screen's filter state.
type Selection struct {
	Date    time.Time
	GroupBy aggregate.GroupBy
	SortBy  aggregate.SortBy
}

// ListState tracks one day's expense list.
type ListState struct {
	ledger *ledger.Ledger
	logger *log.Logger
	ctx    context.Context
	notify notifier

	mu         sync.Mutex
	sel        Selection
	generation uint64
	subID      uint64
	cancel     context.CancelFunc
	snapshot   ledger.Snapshot
	agg        aggregate.ListAggregator
	err        error
}

// NewListState subscribes to sel.Date's day. The state lives until ctx ends.
func NewListState(ctx context.Context, l *ledger.Ledger, sel Selection, logger *log.Logger) *ListState {
	if logger == nil {
		logger = log.Discard()
	}
	s := &ListState{
		ledger: l,
		logger: logger.WithComponent(log.ComponentLedger),
		ctx:    ctx,
		notify: newNotifier(),
		sel:    sel,
	}
	s.mu.Lock()
	s.resubscribeLocked()
	s.mu.Unlock()
	return s
}

// Updates signals after every recompute.
func (s *ListState) Updates() <-chan Update {
	return s.notify.ch
}

// Current returns the latest list and the selection it was computed for.
func (s *ListState) Current() (aggregate.ListView, Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Last(), s.sel, s.err
}

// Close drops the subscription.
func (s *ListState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.subID++
}

// SetDate switches to another day and resubscribes.
func (s *ListState) SetDate(d time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.Date = d
	s.resubscribeLocked()
}

func (s *ListState) SetGroupBy(g aggregate.GroupBy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.GroupBy = g
	s.generation++
	s.recomputeLocked()
}

func (s *ListState) SetSortBy(o aggregate.SortBy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.SortBy = o
	s.generation++
	s.recomputeLocked()
}

func (s *ListState) resubscribeLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	s.subID++
	s.generation++
	id := s.subID
	s.snapshot = ledger.Snapshot{}
	s.agg = aggregate.ListAggregator{}
	s.err = nil

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	sub := s.ledger.Subscribe(ctx, core.DayRange(s.sel.Date))
	go func() {
		for snap := range sub.C() {
			s.apply(id, snap)
		}
	}()
}

// apply drops snapshots from a subscription that has since been replaced.
func (s *ListState) apply(id uint64, snap ledger.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.subID {
		s.logger.Debug("Dropping stale list snapshot", log.FieldVersion, snap.Version)
		return
	}
	s.snapshot = snap
	s.generation++
	s.recomputeLocked()
}

func (s *ListState) recomputeLocked() {
	s.err = s.snapshot.Err
	if s.snapshot.Err == nil {
		s.agg.Compute(s.snapshot.Expenses, s.sel.GroupBy, s.sel.SortBy)
	}
	s.notify.signal(Update{Generation: s.generation, Version: s.snapshot.Version, Err: s.err})
}
