package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	"expensetracker/internal/log"

	_ "modernc.org/sqlite"
)

const (
	insertExpense  = `INSERT INTO expenses (title, amount, category, date, notes, receipt_image_path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectExpense  = `SELECT id, title, amount, category, date, notes, receipt_image_path FROM expenses`
	byID           = selectExpense + ` WHERE id = ?`
	byDateRange    = selectExpense + ` WHERE date >= ? AND date < ? ORDER BY date DESC, id DESC`
	amountsInRange = `SELECT amount FROM expenses WHERE date >= ? AND date < ?`
)

// SQLiteRepository stores expenses in a SQLite file. Amounts are kept as
// decimal text and dates as epoch milliseconds.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, Wrap("create db directory", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, Wrap("open sqlite database", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, Wrap("ping database", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, Wrap("migrate", err)
	}

	if logger == nil {
		logger = log.Discard()
	}
	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	res, err := r.db.ExecContext(ctx, insertExpense,
		e.Title, e.Amount.String(), string(e.Category), e.Millis(), e.Notes, e.ReceiptImagePath, r.now().UnixMilli())
	if err != nil {
		return core.Expense{}, Wrap("insert expense", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, Wrap("insert expense id", err)
	}
	e.ID = id

	r.logger.DebugContext(ctx, "Expense saved to SQLite",
		log.NewFields().WithExpense(e.ID, e.Amount.String(), string(e.Category)).ToSlice()...)
	return e, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, byID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, Wrap(fmt.Sprintf("get expense %d", id), err)
	}
	return e, nil
}

func (r *SQLiteRepository) QueryByDateRange(ctx context.Context, start, end time.Time) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, byDateRange, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, Wrap("query by date range", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, Wrap("scan expense", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap("iterate expenses", err)
	}
	return out, nil
}

// SumAmountByDateRange adds the amounts in Go. SQLite's SUM would coerce the
// decimal text to floating point.
func (r *SQLiteRepository) SumAmountByDateRange(ctx context.Context, start, end time.Time) (*decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, amountsInRange, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, Wrap("sum by date range", err)
	}
	defer rows.Close()

	total, n := decimal.Zero, 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, Wrap("scan amount", err)
		}
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, Wrap("parse stored amount", err)
		}
		total = total.Add(amt)
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap("iterate amounts", err)
	}
	if n == 0 {
		return nil, nil
	}
	return &total, nil
}

var _ Store = (*SQLiteRepository)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e      core.Expense
		amount string
		cat    string
		millis int64
	)
	if err := s.Scan(&e.ID, &e.Title, &amount, &cat, &millis, &e.Notes, &e.ReceiptImagePath); err != nil {
		return core.Expense{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	e.Amount = amt
	e.Category = core.Category(cat)
	e.Date = core.FromMillis(millis)
	return e, nil
}
