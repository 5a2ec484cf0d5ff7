package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"libreta/internal/core"
)

func TestParseDepositInput(t *testing.T) {
	form := url.Values{
		"date":              {"2024-03-01"},
		"total_bs":          {"2.000,50"},
		"rate":              {"40"},
		"reference":         {"012345"},
		"description":       {"Depósito quincenal"},
		"loan_usd":          {"20"},
		"cert_usd":          {"5,50"},
		"protection_months": {"2"},
	}

	in, err := parseDepositInput(form)
	if err != nil {
		t.Fatalf("parseDepositInput() error = %v", err)
	}
	if in.Date.ISO() != "2024-03-01" {
		t.Errorf("Date = %s, want 2024-03-01", in.Date.ISO())
	}
	if in.TotalBs != 2000.50 {
		t.Errorf("TotalBs = %v, want 2000.50", in.TotalBs)
	}
	if in.Rate != 40 {
		t.Errorf("Rate = %v, want 40", in.Rate)
	}
	if in.LoanPaymentUsd != 20 {
		t.Errorf("LoanPaymentUsd = %v, want 20", in.LoanPaymentUsd)
	}
	if in.CertPaymentUsd != 5.50 {
		t.Errorf("CertPaymentUsd = %v, want 5.50", in.CertPaymentUsd)
	}
	if in.ProtectionMonths != 2 {
		t.Errorf("ProtectionMonths = %v, want 2", in.ProtectionMonths)
	}
	if in.Reference != "012345" {
		t.Errorf("Reference = %q, want 012345", in.Reference)
	}
}

func TestParseDepositInputDefaultsDateToToday(t *testing.T) {
	form := url.Values{
		"total_bs": {"100"},
		"rate":     {"40"},
	}
	in, err := parseDepositInput(form)
	if err != nil {
		t.Fatalf("parseDepositInput() error = %v", err)
	}
	if in.Date.IsZero() {
		t.Error("empty date should default to today, got zero date")
	}
}

func TestParseDepositInputRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{"bad date", url.Values{"date": {"01/03/2024"}, "total_bs": {"100"}, "rate": {"40"}}},
		{"bad total", url.Values{"total_bs": {"abc"}, "rate": {"40"}}},
		{"bad rate", url.Values{"total_bs": {"100"}, "rate": {""}}},
		{"bad months", url.Values{"total_bs": {"100"}, "rate": {"40"}, "protection_months": {"-1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseDepositInput(tt.form); err == nil {
				t.Error("parseDepositInput() should reject invalid input")
			}
		})
	}
}

func TestParseMemberID(t *testing.T) {
	if id, err := parseMemberID(url.Values{"member": {"  42 "}}); err != nil || id != 42 {
		t.Errorf("parseMemberID() = %d, %v, want 42, nil", id, err)
	}
	for _, raw := range []string{"", "0", "-5", "abc"} {
		if _, err := parseMemberID(url.Values{"member": {raw}}); err == nil {
			t.Errorf("parseMemberID(%q) should fail", raw)
		}
	}
}

func TestRequestBodyParserForm(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("member=7&reference=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.IsJSON() {
		t.Error("form body should not be detected as JSON")
	}
	if got := p.Get("reference"); got != "abc" {
		t.Errorf("Get(reference) = %q, want abc", got)
	}
}

func TestRequestBodyParserJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"member": 7, "id": "loan-2024-01-19"}`))
	req.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !p.IsJSON() {
		t.Error("JSON body should be detected as JSON")
	}
	if got := p.Get("member"); got != "7" {
		t.Errorf("Get(member) = %q, want 7", got)
	}
	if got := p.Get("id"); got != "loan-2024-01-19" {
		t.Errorf("Get(id) = %q, want loan-2024-01-19", got)
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" a , b ,, c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDateOrToday(t *testing.T) {
	d, err := parseDateOrToday("2024-02-29")
	if err != nil {
		t.Fatalf("parseDateOrToday() error = %v", err)
	}
	if d.ISO() != "2024-02-29" {
		t.Errorf("parseDateOrToday() = %s, want 2024-02-29", d.ISO())
	}
	if _, err := parseDateOrToday("29-02-2024"); err == nil {
		t.Error("parseDateOrToday() should reject non-ISO dates")
	}
	if _, err := core.ParseDate(""); err == nil {
		t.Error("ParseDate(empty) should fail")
	}
}
