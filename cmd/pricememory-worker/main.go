package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pricememory/internal/amqp"
	"pricememory/internal/cli"
	"pricememory/internal/config"
	"pricememory/internal/log"
	"pricememory/internal/sheets/google"
	"pricememory/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		cli.SetupLogger(nil).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)
	logger.Info("Starting pricememory-worker",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName,
		"sync_interval", cfg.SyncInterval.String())

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	mirror, err := google.NewFromConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = repo.Close()
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		_ = repo.Close()
		os.Exit(1)
	}

	mirrorWorker := worker.NewMirrorWorker(mirror, logger)
	reconciler := worker.NewReconciler(repo, mirror, cfg.SyncInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := reconciler.Stop(stopCtx); err != nil {
			logger.Warn("Reconciler stop", log.FieldError, err)
		}
		if err := client.Close(); err != nil {
			logger.Warn("AMQP close", log.FieldError, err)
		}
		if err := repo.Close(); err != nil {
			logger.Warn("SQLite close", log.FieldError, err)
		}
	})

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.ConsumePurchaseEvents(gctx, mirrorWorker.HandleMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	last, at := reconciler.Last()
	logger.Info("Worker stopped gracefully",
		"last_reconcile", at.Format(time.RFC3339),
		"appended", last.Appended,
		"deleted", last.Deleted,
		"failed", last.Failed)
}
