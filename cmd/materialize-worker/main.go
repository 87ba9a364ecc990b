package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mensile/internal/amqp"
	"mensile/internal/config"
	"mensile/internal/core"
	"mensile/internal/log"
	"mensile/internal/services"
	"mensile/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.ComponentWorker, slog.LevelInfo)
	log.SetDefault(logger)

	logger.Info("Starting materialize-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized - materialized months will sync")
		}
	} else {
		logger.Info("AMQP disabled - materialized months will not sync")
	}

	monthService := services.NewMonthService(repo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Materialize worker configured",
		"interval", cfg.MaterializeInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.MaterializeInterval)
	defer ticker.Stop()

	materialize := func(now time.Time) {
		month := core.Date{Time: now}.MonthOf()
		created, err := monthService.MaterializeMonth(ctx, month)
		if err != nil {
			logger.Error("Materialization failed", "month", month.String(), "error", err)
			return
		}
		logger.Info("Materialization complete",
			"month", month.String(),
			"instances_created", created)
	}

	logger.Info("Running initial materialization...")
	materialize(time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				materialize(now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down materialize-worker...")
	cancel()
	logger.Info("Materialize-worker shutdown complete")
}
