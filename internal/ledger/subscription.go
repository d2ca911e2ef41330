package ledger

import (
	"context"
	"sync"
	"time"

	"expensetracker/internal/core"
)

// Subscription is a live view of one window.
type Subscription[T any] struct {
	ledger *Ledger
	window core.Window
	load   func(ctx context.Context, version uint64) T

	mu       sync.Mutex
	mailbox  chan T
	closed   bool
	replaced int
	stop     func() bool
}

func subscribe[T any](ctx context.Context, l *Ledger, w core.Window, load func(context.Context, uint64) T) *Subscription[T] {
	s := &Subscription[T]{
		ledger:  l,
		window:  w,
		load:    load,
		mailbox: make(chan T, 1),
	}

	// Hold the write lock so no insert slips between the initial snapshot
	// and registration.
	l.writeMu.Lock()
	s.offer(load(context.WithoutCancel(ctx), l.Version()))
	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()
	l.writeMu.Unlock()

	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s
}

// C delivers snapshots. It is closed by Close or when the subscribing
// context ends.
func (s *Subscription[T]) C() <-chan T {
	return s.mailbox
}

func (s *Subscription[T]) Window() core.Window {
	return s.window
}

// Replaced counts snapshots that were overwritten before being read.
func (s *Subscription[T]) Replaced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.ledger.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.stop != nil {
		s.stop()
	}
	close(s.mailbox)
}

func (s *Subscription[T]) covers(t time.Time) bool {
	return s.window.Contains(t)
}

func (s *Subscription[T]) refresh(ctx context.Context, version uint64) {
	s.offer(s.load(ctx, version))
}

// offer puts v in the mailbox, evicting an unread value.
func (s *Subscription[T]) offer(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.mailbox:
		s.replaced++
	default:
	}
	s.mailbox <- v
}
