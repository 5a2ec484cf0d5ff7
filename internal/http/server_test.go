package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"libreta/internal/ledger"
	"libreta/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "libreta.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	svc := ledger.NewService(repo, nil)
	t.Cleanup(func() { svc.Close() })
	return NewServer(":0", svc, nil)
}

func registerMember(t *testing.T, s *Server, id string) {
	t.Helper()
	form := url.Values{
		"member":     {id},
		"first_name": {"María"},
		"last_name":  {"Pérez"},
	}
	rec := postForm(s, "/members", form)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /members status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func postForm(s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if rec := get(s, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET /healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}
	if rec := get(s, "/readyz"); rec.Code != http.StatusOK || rec.Body.String() != "ready" {
		t.Errorf("GET /readyz = %d %q, want 200 ready", rec.Code, rec.Body.String())
	}
}

func TestIndexServesLoginPage(t *testing.T) {
	s := newTestServer(t)

	rec := get(s, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Número de libreta") {
		t.Errorf("index page missing login form, got: %.200s", rec.Body.String())
	}
}

func TestRegisterThenLogin(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "777")

	rec := postForm(s, "/login", url.Values{"member": {"777"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /login status = %d", rec.Code)
	}
	if got := rec.Header().Get("HX-Redirect"); got != "/passbook?member=777" {
		t.Errorf("HX-Redirect = %q, want /passbook?member=777", got)
	}
}

func TestLogoutForgetsMember(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "779")

	if rec := postForm(s, "/login", url.Values{"member": {"779"}}); rec.Code != http.StatusOK {
		t.Fatalf("POST /login status = %d", rec.Code)
	}
	if rec := get(s, "/"); !strings.Contains(rec.Body.String(), `value="779"`) {
		t.Errorf("login form should pre-fill the last member, got: %.300s", rec.Body.String())
	}

	if rec := get(s, "/logout"); rec.Code != http.StatusSeeOther {
		t.Fatalf("GET /logout status = %d, want 303", rec.Code)
	}
	if rec := get(s, "/"); strings.Contains(rec.Body.String(), `value="779"`) {
		t.Errorf("login form still pre-filled after logout")
	}
}

func TestLoginUnknownMember(t *testing.T) {
	s := newTestServer(t)

	rec := postForm(s, "/login", url.Values{"member": {"404404"}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("POST /login unknown member status = %d, want 404", rec.Code)
	}
}

func TestRegisterDuplicateMember(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "888")

	rec := postForm(s, "/members", url.Values{
		"member":     {"888"},
		"first_name": {"Otra"},
		"last_name":  {"Persona"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("duplicate register status = %d, want 422", rec.Code)
	}
}

func TestLoginRequiresPOST(t *testing.T) {
	s := newTestServer(t)

	rec := get(s, "/login")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /login status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow header = %q, want POST", allow)
	}
}

func TestRekeyMemberMovesPassbook(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "100")

	rec := postForm(s, "/members/rekey", url.Values{
		"member":     {"100"},
		"new_member": {"200"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /members/rekey status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("HX-Redirect"); got != "/passbook?member=200" {
		t.Errorf("HX-Redirect = %q, want /passbook?member=200", got)
	}

	if rec := postForm(s, "/login", url.Values{"member": {"100"}}); rec.Code != http.StatusNotFound {
		t.Errorf("old number still logs in, status = %d", rec.Code)
	}
	if rec := postForm(s, "/login", url.Values{"member": {"200"}}); rec.Code != http.StatusOK {
		t.Errorf("new number does not log in, status = %d", rec.Code)
	}
}

func TestRekeyMemberToTakenNumber(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "101")
	registerMember(t, s, "102")

	rec := postForm(s, "/members/rekey", url.Values{
		"member":     {"101"},
		"new_member": {"102"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("rekey to taken number status = %d, want 422", rec.Code)
	}
}

func TestDeleteMember(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "103")

	rec := postForm(s, "/members/delete", url.Values{"member": {"103"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /members/delete status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("HX-Redirect"); got != "/" {
		t.Errorf("HX-Redirect = %q, want /", got)
	}
	if rec := postForm(s, "/login", url.Values{"member": {"103"}}); rec.Code != http.StatusNotFound {
		t.Errorf("deleted member still logs in, status = %d", rec.Code)
	}
}

func TestDepositFlow(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "555")

	rec := postForm(s, "/deposits", url.Values{
		"member":   {"555"},
		"date":     {"2024-03-01"},
		"total_bs": {"2000"},
		"rate":     {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /deposits status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("HX-Trigger"), "deposit:created") {
		t.Errorf("HX-Trigger = %q, want deposit:created", rec.Header().Get("HX-Trigger"))
	}

	hist := get(s, "/ui/history?member=555")
	if hist.Code != http.StatusOK {
		t.Fatalf("GET /ui/history status = %d", hist.Code)
	}
	if !strings.Contains(hist.Body.String(), "Ahorro") {
		t.Errorf("history partial missing savings row, got: %.300s", hist.Body.String())
	}
}

func TestDepositInsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "556")

	// Loan payment larger than the whole deposit.
	rec := postForm(s, "/setup", url.Values{
		"member":           {"556"},
		"loan_usd":         {"500"},
		"loan_start":       {"2024-01-05"},
		"loan_frequency":   {"biweekly"},
		"loan_installment": {"50"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /setup status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = postForm(s, "/deposits", url.Values{
		"member":   {"556"},
		"date":     {"2024-03-01"},
		"total_bs": {"2000"},
		"rate":     {"40"},
		"loan_usd": {"60"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraft deposit status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Fondos insuficientes") {
		t.Errorf("overdraft body = %s, want insufficient funds message", rec.Body.String())
	}
}

func TestWithdrawalUpdatesSavings(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "557")

	rec := postForm(s, "/deposits", url.Values{
		"member":   {"557"},
		"date":     {"2024-03-01"},
		"total_bs": {"2000"},
		"rate":     {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	rec = postForm(s, "/withdrawals", url.Values{
		"member":    {"557"},
		"date":      {"2024-03-02"},
		"amount_bs": {"400"},
		"rate":      {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("withdrawal status = %d, body = %s", rec.Code, rec.Body.String())
	}

	sum := get(s, "/ui/summary?member=557")
	if !strings.Contains(sum.Body.String(), "$40,00") {
		t.Errorf("summary after withdrawal should show $40,00 savings, got: %.300s", sum.Body.String())
	}
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	registerMember(t, s, "558")

	rec := postForm(s, "/deposits", url.Values{
		"member":   {"558"},
		"date":     {"2024-03-01"},
		"total_bs": {"2000"},
		"rate":     {"40"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d", rec.Code)
	}

	exp := get(s, "/export?member=558")
	if exp.Code != http.StatusOK {
		t.Fatalf("GET /export status = %d", exp.Code)
	}
	if ct := exp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if !strings.Contains(exp.Body.String(), "Categoría") {
		t.Errorf("CSV export missing header, got: %.200s", exp.Body.String())
	}
}

func TestScanDisabled(t *testing.T) {
	s := newTestServer(t)

	rec := postForm(s, "/scan", url.Values{})
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("POST /scan without scanner status = %d, want 501", rec.Code)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	s := newTestServer(t)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestRateLimiterAllows(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < rateLimitPerMinute; i++ {
		if !rl.allow("10.0.0.9") {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if rl.allow("10.0.0.9") {
		t.Error("request beyond the per-minute budget should be limited")
	}
	if !rl.allow("10.0.0.10") {
		t.Error("a different client must not share the budget")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hola  ", "hola"},
		{"a\x00b", "ab"},
		{"line1\nline2", "line1\nline2"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
