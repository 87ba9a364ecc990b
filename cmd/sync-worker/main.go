package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mensile/internal/amqp"
	"mensile/internal/config"
	gsheet "mensile/internal/export/google"
	"mensile/internal/log"
	"mensile/internal/services"
	"mensile/internal/storage"
	"mensile/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.ComponentWorker, slog.LevelInfo)
	log.SetDefault(logger)

	logger.Info("Starting sync-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.SpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required - the sync worker has nowhere to export")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sheetsClient, err := gsheet.New(ctx, cfg.SpreadsheetID, cfg.ReportSheetName, cfg.ServiceAccount)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.ReportSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// The worker only reads, so it gets no publisher: a re-export must never
	// enqueue another sync message.
	monthService := services.NewMonthService(repo, nil)
	syncWorker := worker.NewSyncWorker(monthService, sheetsClient, cfg.ExportFlushEvery)

	errCh := make(chan error, 1)
	go func() {
		errCh <- syncWorker.Run(ctx, amqpClient)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sync worker stopped", "error", err)
		}
	}

	logger.Info("Shutting down sync-worker...")
	cancel()

	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
	logger.Info("Sync-worker shutdown complete")
}
