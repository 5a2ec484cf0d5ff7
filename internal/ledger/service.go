// Package ledger orchestrates the passbook operations: it runs the pure
// engines in core against state loaded from storage, persists the results,
// and announces changes to the mirror queue.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"libreta/internal/amqp"
	"libreta/internal/core"
	"libreta/internal/storage"
)

type Service struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	now        func() time.Time
}

func NewService(repo *storage.SQLiteRepository, amqpClient *amqp.Client) *Service {
	return &Service{
		storage:    repo,
		amqpClient: amqpClient,
		now:        time.Now,
	}
}

// Snapshot is everything the dashboard needs for one member, recomputed
// from the transaction log on every call.
type Snapshot struct {
	Member        core.Member
	History       core.History
	Rates         core.RateTable
	Balances      core.Balances
	Loan          core.LoanStatus
	Protection    core.ProtectionStatus
	Notifications []core.Notification
	LastUsedRate  float64
	MissingRates  []core.Date
}

// --- member lifecycle ---

// Register creates a member profile. The savings book id doubles as the
// login credential, so a duplicate id is rejected outright.
func (s *Service) Register(ctx context.Context, m core.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.storage.CreateMember(ctx, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Member registered", "member_id", m.ID, "name", m.FullName())
	return nil
}

// Login resolves a savings book id to a member profile and remembers it
// as the current member so the login form can offer it again.
func (s *Service) Login(ctx context.Context, savingsID int64) (core.Member, error) {
	m, err := s.storage.GetMember(ctx, savingsID)
	if err != nil {
		return core.Member{}, err
	}
	if err := s.storage.SetCurrentMemberID(ctx, m.ID); err != nil {
		slog.WarnContext(ctx, "Could not remember current member", "error", err, "member_id", m.ID)
	}
	return m, nil
}

// LastMemberID returns the savings book id of the most recent login, or 0
// when nobody has logged in yet.
func (s *Service) LastMemberID(ctx context.Context) int64 {
	id, err := s.storage.CurrentMemberID(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Could not read current member", "error", err)
		return 0
	}
	return id
}

// Logout forgets the remembered member so the next visit starts blank.
func (s *Service) Logout(ctx context.Context) error {
	return s.storage.ClearCurrentMemberID(ctx)
}

// CompleteSetup stores the member's initial balances and fee schedule and
// marks onboarding as finished.
func (s *Service) CompleteSetup(ctx context.Context, m core.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.SetupComplete = true
	if err := s.storage.UpdateMember(ctx, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Member setup completed", "member_id", m.ID)
	return nil
}

// UpdateSetup edits the member's configuration after onboarding.
func (s *Service) UpdateSetup(ctx context.Context, m core.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.storage.UpdateMember(ctx, m)
}

// AddLoanTranche adds new principal on top of whatever is still unpaid.
// The start date only moves forward when the new tranche begins after the
// most recent loan payment on record; an older or equal date keeps the
// current schedule.
func (s *Service) AddLoanTranche(ctx context.Context, memberID int64, principalUsd float64, startDate core.Date, frequency core.PaymentFrequency, installmentUsd float64) error {
	if principalUsd <= 0 || installmentUsd <= 0 {
		return core.ErrInvalidAmount
	}
	if !frequency.Valid() {
		return fmt.Errorf("invalid payment frequency %q", frequency)
	}

	m, err := s.storage.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	h, err := s.storage.HistoryOf(ctx, memberID)
	if err != nil {
		return err
	}

	m.InitialLoanUsd += principalUsd
	m.LoanFrequency = frequency
	m.LoanInstallmentUsd = installmentUsd

	lastPayment := h.LatestDate(core.Loan)
	if m.LoanStartDate.IsZero() || lastPayment.IsZero() || startDate.After(lastPayment.Time) {
		m.LoanStartDate = startDate
	}

	if err := s.storage.UpdateMember(ctx, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Loan tranche added",
		"member_id", memberID,
		"principal_usd", principalUsd,
		"total_principal_usd", m.InitialLoanUsd)
	return nil
}

// SetProtectionID enrolls the member in social protection after the fact.
func (s *Service) SetProtectionID(ctx context.Context, memberID int64, protectionID string) error {
	m, err := s.storage.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	m.SocialProtectionID = protectionID
	return s.storage.UpdateMember(ctx, m)
}

// RekeyMember changes a member's savings book id, moving their log along.
func (s *Service) RekeyMember(ctx context.Context, oldID, newID int64) error {
	if newID <= 0 {
		return core.ErrInvalidMember
	}
	if err := s.storage.RekeyMember(ctx, oldID, newID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Member rekeyed", "old_id", oldID, "new_id", newID)
	return nil
}

// DeleteMember removes the member and their whole transaction log.
func (s *Service) DeleteMember(ctx context.Context, memberID int64) error {
	if err := s.storage.DeleteMember(ctx, memberID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Member deleted", "member_id", memberID)
	return nil
}

// --- deposits and withdrawals ---

// RegisterDeposit distributes one bulk deposit into categorized rows and
// persists them as an atomic group. The operation's rate is recorded in
// the rate table under the deposit date before any conversion happens.
func (s *Service) RegisterDeposit(ctx context.Context, memberID int64, in core.DepositInput) (core.Group, error) {
	m, err := s.storage.GetMember(ctx, memberID)
	if err != nil {
		return core.Group{}, err
	}
	h, err := s.storage.HistoryOf(ctx, memberID)
	if err != nil {
		return core.Group{}, err
	}
	rates, err := s.storage.LoadRates(ctx)
	if err != nil {
		return core.Group{}, err
	}

	pendingCert := core.Reconstruct(m, h, rates).CertPendingUsd
	res, err := core.Distribute(m, pendingCert, in)
	if err != nil {
		return core.Group{}, err
	}

	if err := s.storage.UpsertRate(ctx, in.Date, in.Rate); err != nil {
		return core.Group{}, err
	}
	if err := s.storage.SetLastUsedRate(ctx, in.Rate); err != nil {
		slog.WarnContext(ctx, "Failed to remember last used rate", "error", err)
	}

	txs := s.materialize(memberID, res.Drafts)
	if err := s.storage.InsertGroup(ctx, txs); err != nil {
		return core.Group{}, err
	}
	s.announce(ctx, txs, amqp.KindUpsert)

	slog.InfoContext(ctx, "Deposit registered",
		"member_id", memberID,
		"total_bs", in.TotalBs,
		"rate", in.Rate,
		"rows", len(txs))
	return groupOf(txs), nil
}

// RegisterWithdrawal books a savings withdrawal as a single negative row.
func (s *Service) RegisterWithdrawal(ctx context.Context, memberID int64, date core.Date, amountBs, rate float64, description string) (core.Group, error) {
	if amountBs <= 0 {
		return core.Group{}, core.ErrInvalidAmount
	}
	if rate <= 0 {
		return core.Group{}, core.ErrInvalidRate
	}
	if _, err := s.storage.GetMember(ctx, memberID); err != nil {
		return core.Group{}, err
	}
	if description == "" {
		description = "Retiro de ahorro"
	}

	draft := core.Draft{
		Date:        date,
		Category:    core.Savings,
		AmountBs:    -amountBs,
		Description: description,
	}
	if err := draft.Validate(); err != nil {
		return core.Group{}, err
	}

	if err := s.storage.UpsertRate(ctx, date, rate); err != nil {
		return core.Group{}, err
	}

	txs := s.materialize(memberID, []core.Draft{draft})
	if err := s.storage.InsertGroup(ctx, txs); err != nil {
		return core.Group{}, err
	}
	s.announce(ctx, txs, amqp.KindUpsert)

	slog.InfoContext(ctx, "Withdrawal registered",
		"member_id", memberID,
		"amount_bs", amountBs)
	return groupOf(txs), nil
}

// EditGroup re-runs the distribution with corrected inputs and atomically
// swaps the old group for the new rows.
func (s *Service) EditGroup(ctx context.Context, memberID int64, oldIDs []string, in core.DepositInput) (core.Group, error) {
	m, err := s.storage.GetMember(ctx, memberID)
	if err != nil {
		return core.Group{}, err
	}
	h, err := s.storage.HistoryOf(ctx, memberID)
	if err != nil {
		return core.Group{}, err
	}
	rates, err := s.storage.LoadRates(ctx)
	if err != nil {
		return core.Group{}, err
	}

	// The certificate headroom check must not count the rows being edited
	// against the member.
	pendingCert := core.Reconstruct(m, h.WithoutIDs(oldIDs), rates).CertPendingUsd
	res, err := core.Distribute(m, pendingCert, in)
	if err != nil {
		return core.Group{}, err
	}

	if err := s.storage.UpsertRate(ctx, in.Date, in.Rate); err != nil {
		return core.Group{}, err
	}

	txs := s.materialize(memberID, res.Drafts)
	if err := s.storage.ReplaceGroup(ctx, memberID, oldIDs, txs); err != nil {
		return core.Group{}, err
	}
	for _, id := range oldIDs {
		s.announceOne(ctx, id, memberID, amqp.KindDelete)
	}
	s.announce(ctx, txs, amqp.KindUpsert)

	slog.InfoContext(ctx, "Transaction group edited",
		"member_id", memberID,
		"removed", len(oldIDs),
		"added", len(txs))
	return groupOf(txs), nil
}

// DeleteGroup removes one operation's rows from the log.
func (s *Service) DeleteGroup(ctx context.Context, memberID int64, ids []string) error {
	if err := s.storage.DeleteGroup(ctx, memberID, ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.announceOne(ctx, id, memberID, amqp.KindDelete)
	}
	slog.InfoContext(ctx, "Transaction group deleted",
		"member_id", memberID,
		"rows", len(ids))
	return nil
}

// --- dashboard ---

// SnapshotOf rebuilds the member's dashboard state from scratch.
func (s *Service) SnapshotOf(ctx context.Context, memberID int64) (Snapshot, error) {
	m, err := s.storage.GetMember(ctx, memberID)
	if err != nil {
		return Snapshot{}, err
	}
	h, err := s.storage.HistoryOf(ctx, memberID)
	if err != nil {
		return Snapshot{}, err
	}
	rates, err := s.storage.LoadRates(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	dismissed, err := s.storage.DismissedIDs(ctx, memberID)
	if err != nil {
		return Snapshot{}, err
	}
	lastRate, err := s.storage.LastUsedRate(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load last used rate", "error", err)
	}

	today := core.Today(s.now())
	snap := Snapshot{
		Member:        m,
		History:       h,
		Rates:         rates,
		Balances:      core.Reconstruct(m, h, rates),
		Loan:          core.LoanStatusOf(m, h, rates, today),
		Protection:    core.ProtectionStatusOf(m, h, today),
		Notifications: core.BuildNotifications(m, h, rates, today, dismissed),
		LastUsedRate:  lastRate,
		MissingRates:  rates.MissingRateDates(h),
	}
	for _, d := range snap.MissingRates {
		slog.WarnContext(ctx, "Transaction date has no exchange rate, converting as zero",
			"member_id", memberID, "date", d.ISO())
	}
	return snap, nil
}

// DismissNotification hides one alert permanently for its due date.
func (s *Service) DismissNotification(ctx context.Context, memberID int64, notificationID string) error {
	return s.storage.DismissNotification(ctx, memberID, notificationID)
}

// --- helpers ---

func (s *Service) materialize(memberID int64, drafts []core.Draft) []core.Transaction {
	txs := make([]core.Transaction, len(drafts))
	for i, d := range drafts {
		txs[i] = core.Transaction{
			ID:          uuid.NewString(),
			MemberID:    memberID,
			Date:        d.Date,
			Category:    d.Category,
			AmountBs:    d.AmountBs,
			Description: d.Description,
			Reference:   d.Reference,
			MonthsPaid:  d.MonthsPaid,
		}
	}
	return txs
}

// announce publishes sync messages best-effort: the rows are already safe
// in the local database, so a broker outage only delays the mirror.
func (s *Service) announce(ctx context.Context, txs []core.Transaction, kind string) {
	for _, t := range txs {
		s.announceOne(ctx, t.ID, t.MemberID, kind)
	}
}

func (s *Service) announceOne(ctx context.Context, id string, memberID int64, kind string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishTxSync(ctx, id, memberID, kind); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", id, "kind", kind, "error", err)
	}
}

func groupOf(txs []core.Transaction) core.Group {
	if len(txs) == 0 {
		return core.Group{}
	}
	return core.Group{Key: txs[0].Key(), Txs: txs}
}

// Close releases the storage and broker connections.
func (s *Service) Close() error {
	var errs []error
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
