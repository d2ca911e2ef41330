package backend

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/export"
	"expensetracker/internal/ledger"
	"expensetracker/internal/log"
	"expensetracker/internal/receipts"
	"expensetracker/internal/services"
	"expensetracker/internal/sheets"
	gsheet "expensetracker/internal/sheets/google"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the configured store and wires the ledger, receipts,
// exporter and entry service on top of it. AMQP and Sheets failures are
// logged and leave those collaborators disabled.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(config)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Store:    store,
		Ledger:   ledger.New(store, ledger.WithLogger(f.logger)),
		Exporter: export.NewRunner(config.ExportDir, export.WithLogger(f.logger)),
	}

	opts := []services.Option{services.WithLogger(f.logger)}
	if config.ReceiptsDir != "" {
		res.Receipts = receipts.New(config.ReceiptsDir, config.ReceiptMaxBytes, f.logger)
		opts = append(opts, services.WithReceipts(res.Receipts))
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			res.AMQP = client
			opts = append(opts, services.WithPublisher(client))
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		}
	}

	if config.GoogleSpreadsheetID != "" {
		pub, err := f.openSheets(ctx, config)
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets client, continuing without it", log.FieldError, err)
		} else {
			res.Publisher = pub
		}
	}

	res.Service = services.NewExpenseService(res.Ledger, opts...)
	res.Cleanup = res.close

	f.logger.Info("Initialized backend",
		"type", config.Type.String(),
		"amqp_enabled", res.AMQP != nil,
		"sheets_enabled", res.Publisher != nil)
	return res, nil
}

func (f *DefaultFactory) openStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		return repo, nil
	case MemoryBackend:
		if config.SeedFile == "" {
			return memory.New(), nil
		}
		store, err := memory.NewFromFile(config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
		f.logger.Info("Seeded memory backend", "seed_file", config.SeedFile)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) openSheets(ctx context.Context, config Config) (sheets.ReportPublisher, error) {
	return gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	}, f.logger)
}

func (r *Result) close() error {
	r.Exporter.Close()
	var errs []error
	if r.AMQP != nil {
		errs = append(errs, r.AMQP.Close())
	}
	errs = append(errs, r.Ledger.Close())
	return errors.Join(errs...)
}
