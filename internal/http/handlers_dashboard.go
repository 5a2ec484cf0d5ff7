package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"libreta/internal/core"
	"libreta/internal/export"
)

// handlePassbook renders the member's dashboard page. The balance partials
// load themselves over HTMX afterwards.
func (s *Server) handlePassbook(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	memberID, err := parseMemberID(r.URL.Query())
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	m, err := s.svc.Login(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		slog.ErrorContext(r.Context(), "Passbook load failed", "error", err, "member_id", memberID)
		http.Error(w, "error loading passbook", http.StatusInternalServerError)
		return
	}

	data := struct {
		MemberID      int64
		Name          string
		SetupComplete bool
		HasProtection bool
		ScanEnabled   bool
	}{
		MemberID:      m.ID,
		Name:          m.FullName(),
		SetupComplete: m.SetupComplete,
		HasProtection: m.HasProtection(),
		ScanEnabled:   s.scanner != nil,
	}
	if err := s.templates.ExecuteTemplate(w, "passbook.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Passbook template execution failed", "error", err, "template", "passbook.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type summaryRow struct {
	Label string
	Value string
	Note  string
}

type notificationView struct {
	ID      string
	Kind    string
	Message string
}

// handleSummaryPartial renders the balances and obligation statuses,
// recomputed from the full log on every request.
func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	memberID, err := parseMemberID(r.URL.Query())
	if err != nil {
		_, _ = w.Write([]byte(`<div class="error">Número de libreta inválido</div>`))
		return
	}

	snap, err := s.svc.SnapshotOf(r.Context(), memberID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary snapshot failed", "error", err, "member_id", memberID)
		_, _ = w.Write([]byte(`<div class="error">Error cargando saldos</div>`))
		return
	}

	b := snap.Balances
	data := struct {
		MemberID      int64
		Rows          []summaryRow
		Loan          string
		LoanState     string
		Protection    string
		ProtState     string
		Notifications []notificationView
		MissingRates  []string
		LastUsedRate  string
	}{MemberID: memberID}

	data.Rows = append(data.Rows,
		summaryRow{Label: "Ahorro", Value: core.FormatUSD(b.SavingsUsd)},
		summaryRow{Label: "Préstamo pendiente", Value: core.FormatUSD(b.LoanUsd), Note: loanNote(b)},
		summaryRow{Label: "Certificado pendiente", Value: core.FormatUSD(b.CertPendingUsd)},
		summaryRow{Label: "Certificado pagado", Value: core.FormatUSD(b.CertPaidUsd)},
	)

	data.LoanState = string(snap.Loan.State)
	switch snap.Loan.State {
	case core.LoanNone:
		data.Loan = "Sin préstamo activo"
	case core.LoanOk:
		data.Loan = "Próxima cuota: " + snap.Loan.NextDue.ISO()
	case core.LoanDueSoon:
		data.Loan = "Cuota próxima a vencer: " + snap.Loan.NextDue.ISO()
	case core.LoanOverdue:
		data.Loan = "Cuota vencida desde " + snap.Loan.NextDue.ISO()
	}

	data.ProtState = string(snap.Protection.State)
	switch snap.Protection.State {
	case core.ProtectionNotApplicable:
		data.Protection = "Sin protección social"
	case core.ProtectionPaid:
		data.Protection = "Protección al día"
	case core.ProtectionPending:
		data.Protection = "Mes pendiente: " + snap.Protection.NextDue.String()
	case core.ProtectionOverdue:
		data.Protection = "Protección vencida desde " + snap.Protection.NextDue.String()
	}

	for _, n := range snap.Notifications {
		data.Notifications = append(data.Notifications, notificationView{ID: n.ID, Kind: n.Kind, Message: n.Message})
	}
	for _, d := range snap.MissingRates {
		data.MissingRates = append(data.MissingRates, d.ISO())
	}
	if snap.LastUsedRate > 0 {
		data.LastUsedRate = strconv.FormatFloat(snap.LastUsedRate, 'f', 2, 64)
	}

	if err := s.templates.ExecuteTemplate(w, "summary.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Summary template execution failed", "error", err, "template", "summary.html")
		_, _ = w.Write([]byte(`<div class="error">Error mostrando saldos</div>`))
	}
}

func loanNote(b core.Balances) string {
	if b.LoanUsd <= core.Epsilon {
		return ""
	}
	note := strconv.Itoa(b.RemainingInstallments) + " cuotas restantes"
	if !b.LoanCompletionDate.IsZero() {
		note += ", termina " + b.LoanCompletionDate.ISO()
	}
	return note
}

type historyRowView struct {
	Category string
	AmountBs string
	Usd      string
	Months   int
}

type historyGroupView struct {
	Date      string
	Reference string
	TotalBs   string
	IDs       string
	Rows      []historyRowView
}

// handleHistoryPartial renders the grouped transaction log, newest first.
func (s *Server) handleHistoryPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	memberID, err := parseMemberID(r.URL.Query())
	if err != nil {
		_, _ = w.Write([]byte(`<div class="error">Número de libreta inválido</div>`))
		return
	}

	snap, err := s.svc.SnapshotOf(r.Context(), memberID)
	if err != nil {
		slog.ErrorContext(r.Context(), "History snapshot failed", "error", err, "member_id", memberID)
		_, _ = w.Write([]byte(`<div class="error">Error cargando movimientos</div>`))
		return
	}

	data := struct {
		MemberID int64
		Groups   []historyGroupView
	}{MemberID: memberID}

	for _, g := range snap.History.Groups() {
		gv := historyGroupView{
			Date:      g.Key.Date.ISO(),
			Reference: g.Key.Reference,
			TotalBs:   core.FormatBs(g.TotalBs()),
			IDs:       strings.Join(g.IDs(), ","),
		}
		for _, tx := range g.SortForReceipt() {
			gv.Rows = append(gv.Rows, historyRowView{
				Category: tx.Category.Label(),
				AmountBs: core.FormatBs(tx.AmountBs),
				Usd:      core.FormatUSD(snap.Rates.USDValue(tx.AmountBs, tx.Date)),
				Months:   tx.MonthsPaid,
			})
		}
		data.Groups = append(data.Groups, gv)
	}

	if err := s.templates.ExecuteTemplate(w, "history.html", data); err != nil {
		slog.ErrorContext(r.Context(), "History template execution failed", "error", err, "template", "history.html")
		_, _ = w.Write([]byte(`<div class="error">Error mostrando movimientos</div>`))
	}
}

// handleDismissNotification hides one alert permanently for its due date.
func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}

	memberID, err := parseMemberID(r.Form)
	if err != nil {
		UnprocessableEntityError("Número de libreta inválido").Write(w)
		return
	}
	notificationID := sanitizeInput(r.Form.Get("id"))
	if notificationID == "" {
		UnprocessableEntityError("Notificación no indicada").Write(w)
		return
	}

	if err := s.svc.DismissNotification(r.Context(), memberID, notificationID); err != nil {
		slog.ErrorContext(r.Context(), "Notification dismissal failed", "error", err, "member_id", memberID)
		InternalServerError("No se pudo descartar la notificación").Write(w)
		return
	}

	NewHTMXResponse().Write(w)
}

// handleExportCSV streams the member's full log as a spreadsheet download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	memberID, err := parseMemberID(r.URL.Query())
	if err != nil {
		http.Error(w, "invalid member id", http.StatusUnprocessableEntity)
		return
	}

	snap, err := s.svc.SnapshotOf(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.ErrorContext(r.Context(), "Export snapshot failed", "error", err, "member_id", memberID)
		http.Error(w, "error exporting passbook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="libreta-`+strconv.FormatInt(memberID, 10)+`.csv"`)
	if err := export.WriteCSV(w, snap.Member, snap.History, snap.Rates); err != nil {
		slog.ErrorContext(r.Context(), "CSV export failed", "error", err, "member_id", memberID)
	}
}
