package core

import "math"

// Balances is everything derivable from a member's profile plus their full
// transaction history. It is recomputed from scratch on every change so it
// can never drift from the log.
type Balances struct {
	SavingsUsd            float64
	LoanUsd               float64
	CertPendingUsd        float64
	CertPaidUsd           float64
	LastProtectionPaid    YearMonth
	RemainingInstallments int
	LoanCompletionDate    Date
}

// Reconstruct replays the transaction history against the rate table and
// returns the member's current balances.
func Reconstruct(m Member, h History, rates RateTable) Balances {
	var b Balances

	b.SavingsUsd = m.InitialSavingsUsd + h.TotalUSD(rates, Savings)
	b.LoanUsd = m.InitialLoanUsd - h.TotalUSD(rates, Loan)
	b.CertPaidUsd = h.TotalUSD(rates, ContributionCertificate)
	b.CertPendingUsd = math.Max(0, m.CertificateTotalUsd-b.CertPaidUsd)

	if !m.LastProtectionPaid.IsZero() {
		b.LastProtectionPaid = m.LastProtectionPaid.AddMonths(h.MonthsPaid())
	}

	if m.LoanInstallmentUsd > 0 {
		b.RemainingInstallments = int(math.Ceil(b.LoanUsd / m.LoanInstallmentUsd))
		if b.RemainingInstallments < 0 {
			b.RemainingInstallments = 0
		}
		b.LoanCompletionDate = loanCompletionDate(m)
	}

	return b
}

// loanCompletionDate projects when the loan would be fully paid off,
// assuming every installment lands on schedule. The projection uses the
// original principal so partial payments don't move the target date.
func loanCompletionDate(m Member) Date {
	if m.InitialLoanUsd <= 0 || m.LoanInstallmentUsd <= 0 || m.LoanStartDate.IsZero() {
		return Date{}
	}
	installments := int(math.Ceil(m.InitialLoanUsd / m.LoanInstallmentUsd))
	switch m.LoanFrequency {
	case Weekly:
		return m.LoanStartDate.AddDays(7 * installments)
	case Biweekly:
		return m.LoanStartDate.AddDays(14 * installments)
	case Monthly:
		return m.LoanStartDate.AddMonths(installments)
	}
	return Date{}
}

// RunningSavings returns the savings balance after each transaction in
// chronological order, aligned with the rows of Chronological(h). Only
// savings rows move the balance; other categories repeat the previous value.
func RunningSavings(m Member, h History, rates RateTable) []float64 {
	rows := Chronological(h)
	out := make([]float64, len(rows))
	bal := m.InitialSavingsUsd
	for i, tx := range rows {
		if tx.Category == Savings {
			bal += rates.USDValue(tx.AmountBs, tx.Date)
		}
		out[i] = bal
	}
	return out
}

// Chronological returns a copy of h ordered oldest first. The stored log is
// newest first, so this is a reversal.
func Chronological(h History) []Transaction {
	out := make([]Transaction, len(h))
	for i, tx := range h {
		out[len(h)-1-i] = tx
	}
	return out
}
