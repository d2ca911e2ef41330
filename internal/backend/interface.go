package backend

import (
	"context"

	"expensetracker/internal/amqp"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/receipts"
	"expensetracker/internal/services"
	"expensetracker/internal/sheets"
	"expensetracker/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result is the wired tracker: the store behind a ledger, the entry service
// and the optional collaborators enabled by configuration.
type Result struct {
	Store     storage.Store
	Ledger    *ledger.Ledger
	Service   *services.ExpenseService
	Receipts  *receipts.Store
	Exporter  *export.Runner
	AMQP      *amqp.Client
	Publisher sheets.ReportPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific
	SeedFile string

	// Optional event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	ExportDir       string
	ReceiptsDir     string
	ReceiptMaxBytes int64

	// Optional sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
