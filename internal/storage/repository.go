package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"libreta/internal/core"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// metaLastUsedRate is the app_meta key remembering the rate pre-filled on
// the next deposit form.
const metaLastUsedRate = "last_used_rate"

// metaCurrentMember is the app_meta key remembering who logged in last,
// so the login form can offer the same savings book again.
const metaCurrentMember = "current_member_id"

// SQLiteRepository is the single persistence layer: members, their
// transaction logs, the exchange-rate table, and dismissed notifications
// all live in one local database file.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// The pragma rides on the DSN so every pooled connection enforces
	// foreign keys, not just the one that ran a PRAGMA statement.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- members ---

const memberColumns = `id, first_name, last_name, social_protection_id, setup_complete,
	initial_savings_usd, initial_loan_usd, loan_start_date, loan_frequency,
	loan_installment_usd, last_protection_paid, monthly_protection_usd,
	fund_contribution_usd, certificate_total_usd`

func (r *SQLiteRepository) CreateMember(ctx context.Context, m core.Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		memberArgs(m)...)
	if isUniqueViolation(err) {
		return core.ErrDuplicateMember
	}
	if err != nil {
		return fmt.Errorf("insert member %d: %w", m.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateMember(ctx context.Context, m core.Member) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE members SET
			first_name = ?, last_name = ?, social_protection_id = ?, setup_complete = ?,
			initial_savings_usd = ?, initial_loan_usd = ?, loan_start_date = ?,
			loan_frequency = ?, loan_installment_usd = ?, last_protection_paid = ?,
			monthly_protection_usd = ?, fund_contribution_usd = ?, certificate_total_usd = ?
		WHERE id = ?`,
		append(memberArgs(m)[1:], m.ID)...)
	if err != nil {
		return fmt.Errorf("update member %d: %w", m.ID, err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id int64) (core.Member, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Member{}, core.ErrMemberNotFound
	}
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %d: %w", id, err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RekeyMember changes a member's id. The schema cascades the update to the
// transaction log and dismissed notifications, so the whole passbook moves
// in one statement.
func (r *SQLiteRepository) RekeyMember(ctx context.Context, oldID, newID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE members SET id = ? WHERE id = ?`, newID, oldID)
	if isUniqueViolation(err) {
		return core.ErrDuplicateMember
	}
	if err != nil {
		return fmt.Errorf("rekey member %d: %w", oldID, err)
	}
	return requireRow(res)
}

func (r *SQLiteRepository) DeleteMember(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE member_id = ?`, id); err != nil {
			return fmt.Errorf("delete transactions of member %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dismissed_notifications WHERE member_id = ?`, id); err != nil {
			return fmt.Errorf("delete dismissals of member %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete member %d: %w", id, err)
		}
		return requireRow(res)
	})
}

// --- transactions ---

const txColumns = `id, member_id, date, category, amount_bs, description, reference, months_paid`

// InsertGroup persists all rows of one operation atomically.
func (r *SQLiteRepository) InsertGroup(ctx context.Context, txs []core.Transaction) error {
	return r.inTx(ctx, func(dbtx *sql.Tx) error {
		return insertAll(ctx, dbtx, txs)
	})
}

// ReplaceGroup deletes the rows with the old ids and inserts the new rows
// in one transaction, so an edit can never leave a half-replaced group.
func (r *SQLiteRepository) ReplaceGroup(ctx context.Context, memberID int64, oldIDs []string, txs []core.Transaction) error {
	return r.inTx(ctx, func(dbtx *sql.Tx) error {
		if err := deleteByIDs(ctx, dbtx, memberID, oldIDs); err != nil {
			return err
		}
		return insertAll(ctx, dbtx, txs)
	})
}

// DeleteGroup removes all rows with the given ids.
func (r *SQLiteRepository) DeleteGroup(ctx context.Context, memberID int64, ids []string) error {
	return r.inTx(ctx, func(dbtx *sql.Tx) error {
		return deleteByIDs(ctx, dbtx, memberID, ids)
	})
}

// ErrTransactionNotFound is returned when a transaction id has no row,
// typically because its group was deleted after a sync message was queued.
var ErrTransactionNotFound = errors.New("transaction not found")

// GetTransaction loads one row by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// HistoryOf loads a member's full transaction log, newest first.
func (r *SQLiteRepository) HistoryOf(ctx context.Context, memberID int64) (core.History, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE member_id = ?
		ORDER BY date DESC, created_at DESC, id DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("load history of member %d: %w", memberID, err)
	}
	defer rows.Close()

	var h core.History
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		h = append(h, tx)
	}
	return h, rows.Err()
}

func insertAll(ctx context.Context, dbtx *sql.Tx, txs []core.Transaction) error {
	for _, t := range txs {
		_, err := dbtx.ExecContext(ctx, `
			INSERT INTO transactions (`+txColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.MemberID, t.Date.ISO(), string(t.Category),
			t.AmountBs, t.Description, t.Reference, t.MonthsPaid)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

func deleteByIDs(ctx context.Context, dbtx *sql.Tx, memberID int64, ids []string) error {
	for _, id := range ids {
		if _, err := dbtx.ExecContext(ctx,
			`DELETE FROM transactions WHERE id = ? AND member_id = ?`, id, memberID); err != nil {
			return fmt.Errorf("delete transaction %s: %w", id, err)
		}
	}
	return nil
}

// --- sync queue ---

// PendingSyncTransaction carries what the mirror worker needs to push one
// row to the central office sheet.
type PendingSyncTransaction struct {
	Tx        core.Transaction
	Attempts  int64
	CreatedAt time.Time
}

// GetPendingSync returns transactions not yet mirrored, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+`, sync_attempts, created_at FROM transactions
		WHERE synced = 0
		ORDER BY created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncTransaction
	for rows.Next() {
		var (
			p         PendingSyncTransaction
			dateS     string
			catS      string
			createdAt string
		)
		t := &p.Tx
		err := rows.Scan(&t.ID, &t.MemberID, &dateS, &catS, &t.AmountBs,
			&t.Description, &t.Reference, &t.MonthsPaid, &p.Attempts, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan pending sync row: %w", err)
		}
		if t.Date, err = core.ParseDate(dateS); err != nil {
			return nil, err
		}
		if t.Category, err = core.ParseCategory(catS); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced flags a transaction as mirrored to the central office sheet.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

// MarkSyncError counts a failed mirror attempt so the worker can back off.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_attempts = sync_attempts + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	return nil
}

// --- rates ---

// UpsertRate records the exchange rate for a date, replacing any prior value.
func (r *SQLiteRepository) UpsertRate(ctx context.Context, d core.Date, rate float64) error {
	if rate <= 0 {
		return core.ErrInvalidRate
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rates (date, bs_per_usd) VALUES (?, ?)
		ON CONFLICT (date) DO UPDATE SET bs_per_usd = excluded.bs_per_usd`,
		d.ISO(), rate)
	if err != nil {
		return fmt.Errorf("upsert rate for %s: %w", d.ISO(), err)
	}
	return nil
}

// LoadRates reads the whole rate table. It is small (one row per deposit
// day) so the engines always work against the full table.
func (r *SQLiteRepository) LoadRates(ctx context.Context) (core.RateTable, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, bs_per_usd FROM rates`)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	defer rows.Close()

	table := make(core.RateTable)
	for rows.Next() {
		var (
			date string
			rate float64
		)
		if err := rows.Scan(&date, &rate); err != nil {
			return nil, fmt.Errorf("scan rate row: %w", err)
		}
		table[date] = rate
	}
	return table, rows.Err()
}

// SetLastUsedRate remembers the most recent rate for form pre-fill.
func (r *SQLiteRepository) SetLastUsedRate(ctx context.Context, rate float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		metaLastUsedRate, fmt.Sprintf("%g", rate))
	if err != nil {
		return fmt.Errorf("set last used rate: %w", err)
	}
	return nil
}

// LastUsedRate returns the remembered rate, or 0 when none was stored yet.
func (r *SQLiteRepository) LastUsedRate(ctx context.Context) (float64, error) {
	var v string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_meta WHERE key = ?`, metaLastUsedRate).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last used rate: %w", err)
	}
	var rate float64
	if _, err := fmt.Sscanf(v, "%g", &rate); err != nil {
		return 0, fmt.Errorf("parse last used rate %q: %w", v, err)
	}
	return rate, nil
}

// SetCurrentMemberID remembers the last savings book that logged in.
func (r *SQLiteRepository) SetCurrentMemberID(ctx context.Context, memberID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		metaCurrentMember, strconv.FormatInt(memberID, 10))
	if err != nil {
		return fmt.Errorf("set current member id: %w", err)
	}
	return nil
}

// CurrentMemberID returns the last logged-in savings book id, or 0 when
// nobody has logged in yet.
func (r *SQLiteRepository) CurrentMemberID(ctx context.Context) (int64, error) {
	var v string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM app_meta WHERE key = ?`, metaCurrentMember).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get current member id: %w", err)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse current member id %q: %w", v, err)
	}
	return id, nil
}

// ClearCurrentMemberID forgets the remembered login, used on logout.
func (r *SQLiteRepository) ClearCurrentMemberID(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM app_meta WHERE key = ?`, metaCurrentMember)
	if err != nil {
		return fmt.Errorf("clear current member id: %w", err)
	}
	return nil
}

// --- notifications ---

func (r *SQLiteRepository) DismissNotification(ctx context.Context, memberID int64, notificationID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dismissed_notifications (member_id, notification_id) VALUES (?, ?)
		ON CONFLICT (member_id, notification_id) DO NOTHING`,
		memberID, notificationID)
	if err != nil {
		return fmt.Errorf("dismiss notification %s: %w", notificationID, err)
	}
	return nil
}

func (r *SQLiteRepository) DismissedIDs(ctx context.Context, memberID int64) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT notification_id FROM dismissed_notifications WHERE member_id = ?`, memberID)
	if err != nil {
		return nil, fmt.Errorf("load dismissed notifications: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dismissed id: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// --- helpers ---

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func memberArgs(m core.Member) []any {
	loanStart := ""
	if !m.LoanStartDate.IsZero() {
		loanStart = m.LoanStartDate.ISO()
	}
	lastProt := ""
	if !m.LastProtectionPaid.IsZero() {
		lastProt = m.LastProtectionPaid.String()
	}
	return []any{
		m.ID, m.FirstName, m.LastName, m.SocialProtectionID, m.SetupComplete,
		m.InitialSavingsUsd, m.InitialLoanUsd, loanStart, string(m.LoanFrequency),
		m.LoanInstallmentUsd, lastProt, m.MonthlyProtectionUsd,
		m.FundContributionUsd, m.CertificateTotalUsd,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (core.Member, error) {
	var (
		m         core.Member
		loanStart string
		frequency string
		lastProt  string
	)
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.SocialProtectionID,
		&m.SetupComplete, &m.InitialSavingsUsd, &m.InitialLoanUsd, &loanStart,
		&frequency, &m.LoanInstallmentUsd, &lastProt, &m.MonthlyProtectionUsd,
		&m.FundContributionUsd, &m.CertificateTotalUsd)
	if err != nil {
		return core.Member{}, err
	}
	m.LoanFrequency = core.PaymentFrequency(frequency)
	if loanStart != "" {
		if m.LoanStartDate, err = core.ParseDate(loanStart); err != nil {
			return core.Member{}, err
		}
	}
	if lastProt != "" {
		if m.LastProtectionPaid, err = core.ParseYearMonth(lastProt); err != nil {
			return core.Member{}, err
		}
	}
	return m, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t     core.Transaction
		dateS string
		catS  string
	)
	err := row.Scan(&t.ID, &t.MemberID, &dateS, &catS, &t.AmountBs,
		&t.Description, &t.Reference, &t.MonthsPaid)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if t.Date, err = core.ParseDate(dateS); err != nil {
		return core.Transaction{}, err
	}
	if t.Category, err = core.ParseCategory(catS); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrMemberNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
