package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"libreta/internal/amqp"
	"libreta/internal/cli"
	apphttp "libreta/internal/http"
	"libreta/internal/ledger"
	applog "libreta/internal/log"
	"libreta/internal/scan"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// The broker is optional for the server: rows are safe locally and the
	// worker sweeps unsynced ones later.
	var (
		amqpClient *amqp.Client
		err        error
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, mirror messages will be swept later", "error", err)
			amqpClient = nil
		}
	}

	svc := ledger.NewService(repo, amqpClient)
	defer svc.Close()

	var scanner *scan.Scanner
	if cfg.ScanEnabled {
		scanner, err = scan.NewScanner(context.Background())
		if err != nil {
			logger.Warn("Receipt scanning disabled", "error", err)
			scanner = nil
		} else {
			logger.Info("Receipt scanning enabled")
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, scanner)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting libreta server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
