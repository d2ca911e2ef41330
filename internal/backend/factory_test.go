package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/config"
	"expensetracker/internal/core"
)

func TestCreateMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.txt")
	if err := os.WriteFile(seed, []byte("2025-07-04T09:30|Lunch|12.50|Food|\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:        MemoryBackend,
		SeedFile:    seed,
		ExportDir:   filepath.Join(dir, "exports"),
		ReceiptsDir: filepath.Join(dir, "receipts"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()

	if res.AMQP != nil || res.Publisher != nil {
		t.Error("optional collaborators must stay disabled without configuration")
	}
	if res.Receipts == nil {
		t.Error("receipts store should be configured")
	}

	w := core.WeekWindow(time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC))
	snap, err := res.Ledger.Query(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Expenses) != 1 || !snap.Expenses[0].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("seeded expenses = %+v", snap.Expenses)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(dir, "db", "expenses.db"),
		ExportDir:    filepath.Join(dir, "exports"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unknown type", Config{Type: "sheets", ExportDir: "x"}},
		{"sqlite without path", Config{Type: SQLiteBackend, ExportDir: "x"}},
		{"missing export dir", Config{Type: MemoryBackend}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactory(nil).CreateBackend(context.Background(), tt.config); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("nil config must fail")
	}

	app := &config.Config{DataBackend: "memory", ExportDir: "out", ReceiptMaxBytes: 42}
	cfg, err := FromAppConfig(app)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != MemoryBackend || cfg.ExportDir != "out" || cfg.ReceiptMaxBytes != 42 {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	app.DataBackend = "sheets"
	if _, err := FromAppConfig(app); err == nil {
		t.Fatal("unknown backend must fail")
	}
}
