package viewstate

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
	"expensetracker/internal/ledger"
)

// ReportState keeps the seven day report current. The window is anchored
// when the state is built; a new day needs a new ReportState.
type ReportState struct {
	notify notifier
	sub    *ledger.Subscription[ledger.Snapshot]

	mu      sync.Mutex
	agg     *aggregate.ReportAggregator
	version uint64
	err     error
}

func NewReportState(ctx context.Context, l *ledger.Ledger, now time.Time) *ReportState {
	agg := aggregate.NewReportAggregator(now)
	s := &ReportState{
		notify: newNotifier(),
		agg:    agg,
	}
	s.sub = l.Subscribe(ctx, agg.Window())
	go func() {
		for snap := range s.sub.C() {
			s.apply(snap)
		}
	}()
	return s
}

func (s *ReportState) apply(snap ledger.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version < s.version {
		return
	}
	s.version = snap.Version
	s.err = snap.Err
	if snap.Err == nil {
		s.agg.Compute(snap.Expenses)
	}
	s.notify.signal(Update{Generation: 1, Version: snap.Version, Err: snap.Err})
}

// Current returns the latest report and the ledger version it reflects.
// Before the first snapshot arrives the report is empty.
func (s *ReportState) Current() (aggregate.Report, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Last(), s.version, s.err
}

func (s *ReportState) Window() core.Window {
	return s.agg.Window()
}

func (s *ReportState) Updates() <-chan Update {
	return s.notify.ch
}

func (s *ReportState) Close() {
	s.sub.Close()
}

// TodayTotal tracks the amount spent on one day.
type TodayTotal struct {
	notify notifier
	sub    *ledger.Subscription[ledger.SumSnapshot]

	mu      sync.Mutex
	total   decimal.Decimal
	version uint64
	err     error
}

func NewTodayTotal(ctx context.Context, l *ledger.Ledger, now time.Time) *TodayTotal {
	s := &TodayTotal{notify: newNotifier(), total: decimal.Zero}
	s.sub = l.SubscribeSum(ctx, core.DayRange(now))
	go func() {
		for snap := range s.sub.C() {
			s.apply(snap)
		}
	}()
	return s
}

func (s *TodayTotal) apply(snap ledger.SumSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version < s.version {
		return
	}
	s.version = snap.Version
	s.err = snap.Err
	if snap.Err == nil {
		s.total = decimal.Zero
		if snap.Total != nil {
			s.total = *snap.Total
		}
	}
	s.notify.signal(Update{Generation: 1, Version: snap.Version, Err: snap.Err})
}

// Current returns the day's total, zero when nothing was spent.
func (s *TodayTotal) Current() (decimal.Decimal, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.version, s.err
}

func (s *TodayTotal) Day() core.Window {
	return s.sub.Window()
}

func (s *TodayTotal) Updates() <-chan Update {
	return s.notify.ch
}

func (s *TodayTotal) Close() {
	s.sub.Close()
}
