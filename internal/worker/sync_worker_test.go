package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"libreta/internal/amqp"
	"libreta/internal/core"
	"libreta/internal/sheets/memory"
	"libreta/internal/storage"
)

func newTestWorker(t *testing.T) (*MirrorWorker, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "libreta.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := memory.New()
	return NewMirrorWorker(repo, store, store, 10), repo, store
}

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository, id string) core.Transaction {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateMember(ctx, core.Member{ID: 12345, FirstName: "María", LastName: "Pérez"}); err != nil {
		t.Fatal(err)
	}
	d := core.NewDate(2024, time.March, 1)
	if err := repo.UpsertRate(ctx, d, 40); err != nil {
		t.Fatal(err)
	}
	tx := core.Transaction{
		ID:          id,
		MemberID:    12345,
		Date:        d,
		Category:    core.Savings,
		AmountBs:    2000,
		Description: "Depósito de ahorro",
	}
	if err := repo.InsertGroup(ctx, []core.Transaction{tx}); err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestHandleSyncMessageUpsert(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()
	seedTransaction(t, repo, "tx-1")

	msg := amqp.NewTxSyncMessage("tx-1", 12345, amqp.KindUpsert)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}

	mirrored := store.Transactions()
	if len(mirrored) != 1 || mirrored[0].ID != "tx-1" {
		t.Fatalf("mirror = %+v", mirrored)
	}

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("row still pending after mirror: %+v", pending)
	}
}

func TestHandleSyncMessageVanishedRow(t *testing.T) {
	w, _, store := newTestWorker(t)

	msg := amqp.NewTxSyncMessage("gone", 12345, amqp.KindUpsert)
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Fatalf("vanished row should not error, got %v", err)
	}
	if len(store.Transactions()) != 0 {
		t.Error("vanished row was mirrored")
	}
}

func TestHandleSyncMessageDelete(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()
	seedTransaction(t, repo, "tx-1")

	if err := w.HandleSyncMessage(ctx, amqp.NewTxSyncMessage("tx-1", 12345, amqp.KindUpsert)); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleSyncMessage(ctx, amqp.NewTxSyncMessage("tx-1", 12345, amqp.KindDelete)); err != nil {
		t.Fatalf("HandleSyncMessage(delete) error = %v", err)
	}
	if len(store.Transactions()) != 0 {
		t.Errorf("row still in mirror after delete: %+v", store.Transactions())
	}
}

func TestHandleSyncMessageUnknownKind(t *testing.T) {
	w, _, _ := newTestWorker(t)
	msg := amqp.NewTxSyncMessage("tx-1", 12345, "compact")
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Errorf("unknown kind should be dropped, got %v", err)
	}
}

func TestProcessPendingSweepsBacklog(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()
	seedTransaction(t, repo, "tx-1")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if len(store.Transactions()) != 1 {
		t.Fatalf("mirror = %+v", store.Transactions())
	}

	// Second sweep has nothing to do.
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatal(err)
	}
	if len(store.Transactions()) != 1 {
		t.Errorf("sweep mirrored the same row twice")
	}
}

func TestStartupSyncCheck(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()
	seedTransaction(t, repo, "tx-1")

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}
	if len(store.Transactions()) != 1 {
		t.Errorf("mirror = %+v", store.Transactions())
	}
}
