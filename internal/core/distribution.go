package core

import (
	"errors"
	"fmt"
)

type (
	// DepositInput is one bulk deposit plus the member's allocation intents.
	// LoanPaymentUsd and CertificatePaymentUsd are chosen by the member;
	// protection and fund dues are derived from the fee schedule times
	// ProtectionMonths. Whatever is left over goes to savings.
	DepositInput struct {
		Date             Date
		TotalBs          float64
		Rate             float64
		Reference        string
		Description      string
		LoanPaymentUsd   float64
		CertPaymentUsd   float64
		ProtectionMonths int
	}

	// DistributionResult is the category breakdown of one deposit before it
	// is persisted. Drafts carry the bolivar amounts; the USD fields are kept
	// for receipt rendering.
	DistributionResult struct {
		TotalUsd      float64
		LoanUsd       float64
		CertUsd       float64
		ProtectionUsd float64
		FundUsd       float64
		SavingsUsd    float64
		Drafts        []Draft
	}

	// InsufficientFundsError reports how many dollars short the deposit is
	// of covering the requested allocations.
	InsufficientFundsError struct {
		ShortfallUsd float64
	}
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverpayment       = errors.New("certificate payment exceeds pending balance")
)

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: short %s", FormatUSD(e.ShortfallUsd))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// defaultDescription is stamped on auto-generated rows when the member
// leaves the description blank. Protection and fund rows name the number
// of months they cover.
func defaultDescription(cat Category, months int) string {
	switch cat {
	case Savings:
		return "Aporte a ahorros"
	case Loan:
		return "Abono a préstamo"
	case ContributionCertificate:
		return "Abono a certificado"
	case SocialProtection:
		return "Pago de " + monthsLabel(months)
	case Fund:
		return "Aporte a Fondo por " + monthsLabel(months)
	}
	return ""
}

func monthsLabel(n int) string {
	if n == 1 {
		return "1 mes"
	}
	return fmt.Sprintf("%d meses", n)
}

// Distribute splits one bulk deposit into category-tagged transaction
// drafts. pendingCertUsd is the member's remaining certificate balance,
// used to reject overpayments. No drafts are emitted on any error.
func Distribute(m Member, pendingCertUsd float64, in DepositInput) (DistributionResult, error) {
	var res DistributionResult

	if in.Rate <= 0 {
		return res, ErrInvalidRate
	}
	if in.TotalBs <= 0 {
		return res, ErrInvalidAmount
	}
	if err := in.Date.Validate(); err != nil {
		return res, err
	}
	if in.LoanPaymentUsd < 0 || in.CertPaymentUsd < 0 || in.ProtectionMonths < 0 {
		return res, ErrInvalidAmount
	}
	if in.ProtectionMonths > 0 && !m.HasProtection() {
		return res, fmt.Errorf("member %d has no protection id", m.ID)
	}

	res.TotalUsd = in.TotalBs / in.Rate
	res.LoanUsd = in.LoanPaymentUsd
	res.CertUsd = in.CertPaymentUsd
	if in.ProtectionMonths > 0 {
		res.ProtectionUsd = m.ProtectionFeeUsd() * float64(in.ProtectionMonths)
		res.FundUsd = m.FundFeeUsd() * float64(in.ProtectionMonths)
	}

	// Overpayment is checked before insufficiency so the member sees the
	// field-level problem first.
	if res.CertUsd > pendingCertUsd+Epsilon {
		return res, ErrOverpayment
	}

	cost := res.LoanUsd + res.CertUsd + res.ProtectionUsd + res.FundUsd
	res.SavingsUsd = res.TotalUsd - cost
	if res.SavingsUsd < -1e-9 {
		return res, &InsufficientFundsError{ShortfallUsd: Round2(cost - res.TotalUsd)}
	}
	if res.SavingsUsd < Epsilon {
		res.SavingsUsd = 0
	}

	add := func(cat Category, usd float64, months int) {
		if usd <= 0 {
			return
		}
		desc := in.Description
		if desc == "" {
			desc = defaultDescription(cat, months)
		}
		res.Drafts = append(res.Drafts, Draft{
			Date:        in.Date,
			Category:    cat,
			AmountBs:    Round2(usd * in.Rate),
			Description: desc,
			Reference:   in.Reference,
			MonthsPaid:  months,
		})
	}

	add(Loan, res.LoanUsd, 0)
	add(ContributionCertificate, res.CertUsd, 0)
	add(SocialProtection, res.ProtectionUsd, in.ProtectionMonths)
	add(Fund, res.FundUsd, in.ProtectionMonths)
	add(Savings, res.SavingsUsd, 0)

	return res, nil
}
