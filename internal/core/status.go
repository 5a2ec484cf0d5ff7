package core

import "fmt"

const (
	LoanNone    LoanState = "no_loan"
	LoanOk      LoanState = "ok"
	LoanDueSoon LoanState = "due_soon"
	LoanOverdue LoanState = "overdue"

	ProtectionNotApplicable ProtectionState = "not_applicable"
	ProtectionPaid          ProtectionState = "paid"
	ProtectionPending       ProtectionState = "pending"
	ProtectionOverdue       ProtectionState = "overdue"
)

// dueSoonWindowDays is how many days before the next loan payment the
// status flips from ok to due_soon.
const dueSoonWindowDays = 3

type (
	LoanState       string
	ProtectionState string

	// LoanStatus is the loan obligation's state on a given day.
	LoanStatus struct {
		State   LoanState
		NextDue Date
		Balance float64
	}

	// ProtectionStatus is the protection obligation's state for the current
	// calendar month.
	ProtectionStatus struct {
		State   ProtectionState
		NextDue YearMonth
	}

	// Notification is a dismissible alert derived from an obligation status.
	// The id is stable for a given due date so a dismissal keeps suppressing
	// the same alert across recomputations.
	Notification struct {
		ID      string
		Kind    string
		Message string
	}
)

// LoanStatusOf computes the loan obligation state as a pure function of the
// member's config, their history, and today's date.
func LoanStatusOf(m Member, h History, rates RateTable, today Date) LoanStatus {
	if m.InitialLoanUsd <= 0 || m.LoanStartDate.IsZero() || !m.LoanFrequency.Valid() {
		return LoanStatus{State: LoanNone}
	}

	balance := m.InitialLoanUsd - h.TotalUSD(rates, Loan)
	anchor := h.LatestDate(Loan)
	if anchor.IsZero() {
		anchor = m.LoanStartDate
	}
	next := m.LoanFrequency.Advance(anchor)
	st := LoanStatus{NextDue: next, Balance: balance}

	switch {
	case balance <= Epsilon:
		st.State = LoanOk
	case !today.Before(next.Time):
		st.State = LoanOverdue
	case !today.Before(next.AddDays(-dueSoonWindowDays).Time):
		st.State = LoanDueSoon
	default:
		st.State = LoanOk
	}
	return st
}

// ProtectionStatusOf computes the protection obligation state against the
// calendar month containing today.
func ProtectionStatusOf(m Member, h History, today Date) ProtectionStatus {
	if !m.HasProtection() {
		return ProtectionStatus{State: ProtectionNotApplicable}
	}

	current := YearMonthOf(today)
	if m.LastProtectionPaid.IsZero() {
		// Enrolled but never paid: the current month is owed.
		return ProtectionStatus{State: ProtectionPending, NextDue: current}
	}

	lastPaid := m.LastProtectionPaid.AddMonths(h.MonthsPaid())
	next := lastPaid.AddMonths(1)
	st := ProtectionStatus{NextDue: next}
	switch {
	case next.After(current):
		st.State = ProtectionPaid
	case next.Before(current):
		st.State = ProtectionOverdue
	default:
		st.State = ProtectionPending
	}
	return st
}

// BuildNotifications snapshots both obligation statuses into dismissible
// alerts, skipping any id in dismissed.
func BuildNotifications(m Member, h History, rates RateTable, today Date, dismissed map[string]struct{}) []Notification {
	var out []Notification

	keep := func(n Notification) {
		if _, ok := dismissed[n.ID]; !ok {
			out = append(out, n)
		}
	}

	loan := LoanStatusOf(m, h, rates, today)
	switch loan.State {
	case LoanDueSoon:
		keep(Notification{
			ID:      "loan-" + loan.NextDue.ISO(),
			Kind:    "loan",
			Message: fmt.Sprintf("Cuota de préstamo vence el %s", loan.NextDue.ISO()),
		})
	case LoanOverdue:
		keep(Notification{
			ID:      "loan-" + loan.NextDue.ISO(),
			Kind:    "loan",
			Message: fmt.Sprintf("Cuota de préstamo vencida desde el %s", loan.NextDue.ISO()),
		})
	}

	prot := ProtectionStatusOf(m, h, today)
	switch prot.State {
	case ProtectionPending:
		keep(Notification{
			ID:      "protection-" + prot.NextDue.String(),
			Kind:    "protection",
			Message: fmt.Sprintf("Protección social pendiente para %s", prot.NextDue),
		})
	case ProtectionOverdue:
		keep(Notification{
			ID:      "protection-" + prot.NextDue.String(),
			Kind:    "protection",
			Message: fmt.Sprintf("Protección social vencida desde %s", prot.NextDue),
		})
	}

	return out
}
