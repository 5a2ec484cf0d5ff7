package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"libreta/internal/amqp"
	"libreta/internal/cli"
	"libreta/internal/config"
	applog "libreta/internal/log"
	"libreta/internal/sheets"
	gsheet "libreta/internal/sheets/google"
	mem "libreta/internal/sheets/memory"
	"libreta/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)

	logger.Info("Starting libreta-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var (
		writer  sheets.TransactionWriter
		deleter sheets.TransactionDeleter
	)
	switch cfg.Mirror {
	case config.MirrorSheets:
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer, deleter = client, client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case config.MirrorMemory:
		store := mem.New()
		writer, deleter = store, store
		logger.Info("In-memory mirror initialized")
	default:
		logger.Info("Mirror disabled, worker exits", "mirror", cfg.Mirror)
		return
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirrorWorker := worker.NewMirrorWorker(repo, writer, deleter, cfg.SyncBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch rows that were booked while no worker was listening.
	logger.Info("Performing startup sync check")
	if err := mirrorWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			err := amqpClient.ConsumeTxSync(gctx, func(msg *amqp.TxSyncMessage) error {
				return mirrorWorker.HandleSyncMessage(gctx, msg)
			})
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error("Message consumption failed, reconnecting", "error", err)
			if err := amqpClient.Reconnect(gctx); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := mirrorWorker.ProcessPending(gctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
