package main

import (
	"context"
	"os"
	"time"

	"expensetracker/internal/cli"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting tracker-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(context.Background(), logger, cfg)

	if res.Publisher != nil {
		logger.Info("Google Sheets publishing enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	processor := services.NewReportProcessor(res.Ledger, res.Exporter, res.Publisher,
		services.ReportProcessorConfig{PollInterval: cfg.ReportPollInterval}, logger)

	var consumer worker.Consumer
	if res.AMQP != nil {
		consumer = res.AMQP
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}
	w := worker.NewReportWorker(consumer, processor, res.Ledger, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	runErr := w.Run(ctx)
	if runErr != nil {
		logger.Error("Worker stopped with error", log.FieldError, runErr)
	}

	stats := w.Stats()
	logger.Info("Worker statistics",
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", log.FieldError, err)
	}
	if runErr != nil {
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
