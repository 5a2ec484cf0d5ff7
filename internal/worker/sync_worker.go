// Package worker mirrors the local transaction log to the cooperative
// office's shared spreadsheet. The local database is the source of truth;
// the mirror is best effort and eventually consistent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"libreta/internal/amqp"
	"libreta/internal/core"
	"libreta/internal/sheets"
	"libreta/internal/storage"
)

type MirrorWorker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.TransactionWriter
	deleter   sheets.TransactionDeleter
	batchSize int
}

func NewMirrorWorker(repo *storage.SQLiteRepository, writer sheets.TransactionWriter, deleter sheets.TransactionDeleter, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		storage:   repo,
		writer:    writer,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes one queue message. The message only names a
// transaction id; the row itself is re-read from the local database so a
// stale message can never mirror stale data.
func (w *MirrorWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TxSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"kind", msg.Kind)

	switch msg.Kind {
	case amqp.KindDelete:
		return w.handleDelete(ctx, msg.ID)
	case amqp.KindUpsert:
		return w.handleUpsert(ctx, msg.ID)
	default:
		// Drop unknown kinds instead of requeueing them forever.
		slog.WarnContext(ctx, "Unknown sync message kind, dropping",
			"id", msg.ID, "kind", msg.Kind)
		return nil
	}
}

func (w *MirrorWorker) handleUpsert(ctx context.Context, id string) error {
	tx, err := w.storage.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrTransactionNotFound) {
		// The group was edited or deleted after the message was queued; the
		// delete message that follows will clean up the mirror.
		slog.WarnContext(ctx, "Transaction vanished before mirroring, skipping", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	return w.mirror(ctx, tx)
}

func (w *MirrorWorker) handleDelete(ctx context.Context, id string) error {
	if w.deleter == nil {
		slog.WarnContext(ctx, "No deleter configured, skipping mirror delete", "id", id)
		return nil
	}
	if err := w.deleter.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete from mirror: %w", err)
	}
	slog.InfoContext(ctx, "Deleted transaction from office mirror", "id", id)
	return nil
}

// ProcessPending sweeps transactions that never got mirrored. This is the
// backup path for lost queue messages.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))
	for _, p := range pending {
		if err := w.mirror(ctx, p.Tx); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction",
				"id", p.Tx.ID, "attempts", p.Attempts, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains the pending backlog once at worker startup, with
// a larger batch, to recover from downtime.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, p := range pending {
		if err := w.mirror(ctx, p.Tx); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction during startup",
				"id", p.Tx.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)
	return nil
}

func (w *MirrorWorker) mirror(ctx context.Context, tx core.Transaction) error {
	rates, err := w.storage.LoadRates(ctx)
	if err != nil {
		return fmt.Errorf("load rates: %w", err)
	}
	rate, ok := rates.Rate(tx.Date)
	if !ok {
		slog.WarnContext(ctx, "No exchange rate for transaction date, mirroring without USD value",
			"id", tx.ID, "date", tx.Date.ISO())
	}

	ref, err := w.writer.Append(ctx, tx, rate)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to mirror: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, tx.ID); err != nil {
		// The sync itself worked; the sweep may mirror this row twice.
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Mirrored transaction to office ledger",
		"id", tx.ID,
		"sheets_ref", ref,
		"category", string(tx.Category),
		"amount_bs", tx.AmountBs)
	return nil
}
