package core

import (
	"errors"
	"strings"
)

const (
	Weekly   PaymentFrequency = "weekly"
	Biweekly PaymentFrequency = "biweekly"
	Monthly  PaymentFrequency = "monthly"
)

// Default dues applied when a member's setup left them unset, matching the
// cooperative's standing fee schedule.
const (
	DefaultMonthlyProtectionFeeUsd = 3.0
	DefaultFundContributionUsd     = 0.5
)

type (
	// PaymentFrequency is the cadence of loan installments.
	PaymentFrequency string

	// Member is one cooperative associate's profile. It carries only
	// configuration and initial balances: every running balance is derived
	// from the transaction log, never stored here.
	Member struct {
		ID                 int64
		FirstName          string
		LastName           string
		SocialProtectionID string
		SetupComplete      bool

		InitialSavingsUsd float64
		InitialLoanUsd    float64

		LoanStartDate        Date
		LoanFrequency        PaymentFrequency
		LoanInstallmentUsd   float64
		LastProtectionPaid   YearMonth // anchor month; advanced by paid months from the log
		MonthlyProtectionUsd float64
		FundContributionUsd  float64

		CertificateTotalUsd float64
	}
)

var (
	ErrDuplicateMember = errors.New("member id already registered")
	ErrMemberNotFound  = errors.New("member not found")
	ErrInvalidMember   = errors.New("invalid member")
)

func (f PaymentFrequency) Valid() bool {
	switch f {
	case Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// Advance moves d forward by one payment period.
func (f PaymentFrequency) Advance(d Date) Date {
	switch f {
	case Weekly:
		return d.AddDays(7)
	case Biweekly:
		return d.AddDays(14)
	default:
		return d.AddMonths(1)
	}
}

// FullName joins first and last name for display.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// HasProtection reports whether the member is enrolled in social protection.
func (m Member) HasProtection() bool {
	return strings.TrimSpace(m.SocialProtectionID) != ""
}

// HasCertificate reports whether a contribution certificate was configured.
func (m Member) HasCertificate() bool {
	return m.CertificateTotalUsd > 0
}

// ProtectionFeeUsd is the monthly protection fee, falling back to the
// cooperative default when setup left it unset.
func (m Member) ProtectionFeeUsd() float64 {
	if m.MonthlyProtectionUsd > 0 {
		return m.MonthlyProtectionUsd
	}
	return DefaultMonthlyProtectionFeeUsd
}

// FundFeeUsd is the monthly special-fund contribution, with the same
// fallback rule as ProtectionFeeUsd.
func (m Member) FundFeeUsd() float64 {
	if m.FundContributionUsd > 0 {
		return m.FundContributionUsd
	}
	return DefaultFundContributionUsd
}

func (m Member) Validate() error {
	if m.ID <= 0 {
		return ErrInvalidMember
	}
	if strings.TrimSpace(m.FirstName) == "" || strings.TrimSpace(m.LastName) == "" {
		return ErrInvalidMember
	}
	if m.InitialSavingsUsd < 0 || m.InitialLoanUsd < 0 || m.CertificateTotalUsd < 0 {
		return ErrInvalidMember
	}
	if m.LoanFrequency != "" && !m.LoanFrequency.Valid() {
		return ErrInvalidMember
	}
	return nil
}
