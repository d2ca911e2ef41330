// Package memory is an in-process expense store for development and tests.
package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// SeedTimeLayout is the date layout of seed file lines.
const SeedTimeLayout = "2006-01-02T15:04"

type Store struct {
	mu     sync.Mutex
	nextID int64
	items  []core.Expense
	// FailInserts makes Insert fail with storage.ErrStorage. Tests only.
	FailInserts bool
}

func New(seed ...core.Expense) *Store {
	s := &Store{nextID: 1}
	for _, e := range seed {
		e.ID = s.nextID
		s.nextID++
		s.items = append(s.items, e)
	}
	return s
}

// NewFromFile seeds the store from a pipe-separated file with one expense
// per line: date|title|amount|category|notes. Blank lines and lines starting
// with # are skipped. A missing file yields an empty store.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, storage.Wrap("open seed file", err)
	}
	defer f.Close()

	var seed []core.Expense
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseSeedLine(line)
		if err != nil {
			return nil, fmt.Errorf("seed line %d: %w", n, err)
		}
		seed = append(seed, e)
	}
	if err := sc.Err(); err != nil {
		return nil, storage.Wrap("read seed file", err)
	}
	return New(seed...), nil
}

func parseSeedLine(line string) (core.Expense, error) {
	parts := strings.SplitN(line, "|", 5)
	if len(parts) < 4 {
		return core.Expense{}, fmt.Errorf("expected date|title|amount|category[|notes], got %q", line)
	}
	at, err := time.ParseInLocation(SeedTimeLayout, strings.TrimSpace(parts[0]), time.Local)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse date: %w", err)
	}
	amt, err := core.ParseAmount(parts[2])
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		Title:    strings.TrimSpace(parts[1]),
		Amount:   amt,
		Category: core.Category(strings.TrimSpace(parts[3])),
		Date:     at,
	}
	if len(parts) == 5 {
		e.Notes = strings.TrimSpace(parts[4])
	}
	return e, e.Validate()
}

func (s *Store) Insert(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInserts {
		return core.Expense{}, storage.Wrap("insert expense", errors.New("memory store refusing writes"))
	}
	e.ID = s.nextID
	s.nextID++
	s.items = append(s.items, e)
	return e, nil
}

func (s *Store) Get(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, fmt.Errorf("get expense %d: %w", id, storage.ErrNotFound)
}

func (s *Store) QueryByDateRange(_ context.Context, start, end time.Time) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.items {
		if !e.Date.Before(start) && e.Date.Before(end) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) SumAmountByDateRange(ctx context.Context, start, end time.Time) (*decimal.Decimal, error) {
	items, err := s.QueryByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return storage.Sum(items), nil
}

func (s *Store) Close() error { return nil }

var _ storage.Store = (*Store)(nil)
