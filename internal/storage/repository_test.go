package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"libreta/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "libreta.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func storedMember() core.Member {
	return core.Member{
		ID:        12345,
		FirstName: "María",
		LastName:  "Pérez",
	}
}

func storedTx(id string, memberID int64, date string, cat core.Category, amountBs float64) core.Transaction {
	d, _ := core.ParseDate(date)
	return core.Transaction{
		ID:          id,
		MemberID:    memberID,
		Date:        d,
		Category:    cat,
		AmountBs:    amountBs,
		Description: "x",
	}
}

func TestMemberLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	m := storedMember()
	if err := repo.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember() error = %v", err)
	}
	if err := repo.CreateMember(ctx, m); !errors.Is(err, core.ErrDuplicateMember) {
		t.Fatalf("duplicate CreateMember() error = %v, want ErrDuplicateMember", err)
	}
	if _, err := repo.GetMember(ctx, 999); !errors.Is(err, core.ErrMemberNotFound) {
		t.Fatalf("GetMember(999) error = %v, want ErrMemberNotFound", err)
	}

	m.SocialProtectionID = "SP-7"
	m.SetupComplete = true
	m.LoanStartDate = core.NewDate(2024, time.January, 5)
	m.LoanFrequency = core.Biweekly
	m.LastProtectionPaid = core.YearMonth{Year: 2024, Month: time.January}
	if err := repo.UpdateMember(ctx, m); err != nil {
		t.Fatalf("UpdateMember() error = %v", err)
	}

	got, err := repo.GetMember(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if got.SocialProtectionID != "SP-7" || !got.SetupComplete {
		t.Errorf("round-trip lost setup fields: %+v", got)
	}
	if got.LoanStartDate.ISO() != "2024-01-05" {
		t.Errorf("loan start = %s", got.LoanStartDate.ISO())
	}
	if got.LastProtectionPaid.String() != "2024-01" {
		t.Errorf("last protection = %s", got.LastProtectionPaid)
	}
}

func TestHistoryOrderedNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}

	group := []core.Transaction{
		storedTx("a", 12345, "2024-01-10", core.Savings, 100),
		storedTx("b", 12345, "2024-03-01", core.Loan, 200),
		storedTx("c", 12345, "2024-02-15", core.Savings, 300),
	}
	if err := repo.InsertGroup(ctx, group); err != nil {
		t.Fatalf("InsertGroup() error = %v", err)
	}

	h, err := repo.HistoryOf(ctx, 12345)
	if err != nil {
		t.Fatalf("HistoryOf() error = %v", err)
	}
	if len(h) != 3 {
		t.Fatalf("got %d rows, want 3", len(h))
	}
	if h[0].ID != "b" || h[1].ID != "c" || h[2].ID != "a" {
		t.Errorf("order = %s,%s,%s, want b,c,a", h[0].ID, h[1].ID, h[2].ID)
	}
}

func TestReplaceGroup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}

	old := []core.Transaction{
		storedTx("a", 12345, "2024-01-10", core.Loan, 800),
		storedTx("b", 12345, "2024-01-10", core.Savings, 1200),
	}
	if err := repo.InsertGroup(ctx, old); err != nil {
		t.Fatal(err)
	}

	replacement := []core.Transaction{
		storedTx("c", 12345, "2024-01-10", core.Savings, 2000),
	}
	if err := repo.ReplaceGroup(ctx, 12345, []string{"a", "b"}, replacement); err != nil {
		t.Fatalf("ReplaceGroup() error = %v", err)
	}

	h, err := repo.HistoryOf(ctx, 12345)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 1 || h[0].ID != "c" {
		t.Errorf("history after replace = %+v", h)
	}
}

func TestDeleteGroup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertGroup(ctx, []core.Transaction{
		storedTx("a", 12345, "2024-01-10", core.Savings, 100),
		storedTx("b", 12345, "2024-01-12", core.Savings, 200),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteGroup(ctx, 12345, []string{"a"}); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	h, _ := repo.HistoryOf(ctx, 12345)
	if len(h) != 1 || h[0].ID != "b" {
		t.Errorf("history after delete = %+v", h)
	}
}

func TestRekeyMemberMovesTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertGroup(ctx, []core.Transaction{
		storedTx("a", 12345, "2024-01-10", core.Savings, 100),
	}); err != nil {
		t.Fatal(err)
	}

	if err := repo.DismissNotification(ctx, 12345, "loan-2024-01-19"); err != nil {
		t.Fatal(err)
	}

	if err := repo.RekeyMember(ctx, 12345, 54321); err != nil {
		t.Fatalf("RekeyMember() error = %v", err)
	}
	if _, err := repo.GetMember(ctx, 12345); !errors.Is(err, core.ErrMemberNotFound) {
		t.Errorf("old id still resolves")
	}
	h, err := repo.HistoryOf(ctx, 54321)
	if err != nil || len(h) != 1 {
		t.Errorf("transactions did not move: %v, %v", h, err)
	}
	dismissed, err := repo.DismissedIDs(ctx, 54321)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := dismissed["loan-2024-01-19"]; !ok {
		t.Errorf("dismissed notifications did not move: %v", dismissed)
	}
}

func TestOrphanTransactionRejected(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.InsertGroup(ctx, []core.Transaction{
		storedTx("orphan", 999, "2024-01-10", core.Savings, 100),
	})
	if err == nil {
		t.Fatal("transaction without a member row was accepted")
	}
}

func TestDeleteMemberRemovesLog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertGroup(ctx, []core.Transaction{
		storedTx("a", 12345, "2024-01-10", core.Savings, 100),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteMember(ctx, 12345); err != nil {
		t.Fatalf("DeleteMember() error = %v", err)
	}
	h, err := repo.HistoryOf(ctx, 12345)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 0 {
		t.Errorf("orphaned transactions remain: %+v", h)
	}
}

func TestRates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := core.NewDate(2024, time.March, 1)

	if err := repo.UpsertRate(ctx, d, 40); err != nil {
		t.Fatalf("UpsertRate() error = %v", err)
	}
	if err := repo.UpsertRate(ctx, d, 41); err != nil {
		t.Fatalf("UpsertRate() overwrite error = %v", err)
	}
	if err := repo.UpsertRate(ctx, d, 0); !errors.Is(err, core.ErrInvalidRate) {
		t.Fatalf("UpsertRate(0) error = %v, want ErrInvalidRate", err)
	}

	table, err := repo.LoadRates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := table[d.ISO()]; got != 41 {
		t.Errorf("rate = %v, want 41", got)
	}
}

func TestLastUsedRate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rate, err := repo.LastUsedRate(ctx)
	if err != nil || rate != 0 {
		t.Fatalf("empty LastUsedRate() = %v, %v", rate, err)
	}
	if err := repo.SetLastUsedRate(ctx, 36.25); err != nil {
		t.Fatal(err)
	}
	if rate, _ = repo.LastUsedRate(ctx); rate != 36.25 {
		t.Errorf("rate = %v, want 36.25", rate)
	}
}

func TestCurrentMemberID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CurrentMemberID(ctx)
	if err != nil || id != 0 {
		t.Fatalf("empty CurrentMemberID() = %v, %v", id, err)
	}
	if err := repo.SetCurrentMemberID(ctx, 12345); err != nil {
		t.Fatal(err)
	}
	if id, _ = repo.CurrentMemberID(ctx); id != 12345 {
		t.Errorf("id = %v, want 12345", id)
	}
	if err := repo.SetCurrentMemberID(ctx, 678); err != nil {
		t.Fatal(err)
	}
	if id, _ = repo.CurrentMemberID(ctx); id != 678 {
		t.Errorf("id after switch = %v, want 678", id)
	}
	if err := repo.ClearCurrentMemberID(ctx); err != nil {
		t.Fatal(err)
	}
	if id, _ = repo.CurrentMemberID(ctx); id != 0 {
		t.Errorf("id after clear = %v, want 0", id)
	}
}

func TestPendingSync(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertGroup(ctx, []core.Transaction{
		storedTx("a", 12345, "2024-01-10", core.Savings, 100),
		storedTx("b", 12345, "2024-01-12", core.Loan, 200),
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSync() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}

	if err := repo.MarkSynced(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkSyncError(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	pending, err = repo.GetPendingSync(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Tx.ID != "b" {
		t.Fatalf("pending after mark = %+v", pending)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", pending[0].Attempts)
	}
}

func TestDismissedNotifications(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.CreateMember(ctx, storedMember()); err != nil {
		t.Fatal(err)
	}

	if err := repo.DismissNotification(ctx, 12345, "loan-2024-01-19"); err != nil {
		t.Fatalf("DismissNotification() error = %v", err)
	}
	// Dismissing twice is a no-op.
	if err := repo.DismissNotification(ctx, 12345, "loan-2024-01-19"); err != nil {
		t.Fatalf("repeat DismissNotification() error = %v", err)
	}

	ids, err := repo.DismissedIDs(ctx, 12345)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids["loan-2024-01-19"]; !ok || len(ids) != 1 {
		t.Errorf("dismissed ids = %v", ids)
	}
}
