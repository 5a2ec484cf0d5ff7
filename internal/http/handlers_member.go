package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"libreta/internal/core"
)

// handleSetup stores the opening balances recorded in the paper passbook.
// The same form serves first-time onboarding and later corrections.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
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

	m, err := s.svc.Login(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			NotFoundError("No existe una libreta con ese número").Write(w)
			return
		}
		InternalServerError("Error al cargar la libreta").Write(w)
		return
	}

	if v := sanitizeInput(r.Form.Get("first_name")); v != "" {
		m.FirstName = v
	}
	if v := sanitizeInput(r.Form.Get("last_name")); v != "" {
		m.LastName = v
	}
	if r.Form.Has("protection_id") {
		m.SocialProtectionID = sanitizeInput(r.Form.Get("protection_id"))
	}

	if v := strings.TrimSpace(r.Form.Get("initial_savings")); v != "" {
		if m.InitialSavingsUsd, err = parseAmount(v); err != nil {
			UnprocessableEntityError("Ahorro inicial inválido").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("loan_usd")); v != "" {
		if m.InitialLoanUsd, err = parseAmount(v); err != nil {
			UnprocessableEntityError("Monto de préstamo inválido").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("loan_start")); v != "" {
		if m.LoanStartDate, err = core.ParseDate(v); err != nil {
			UnprocessableEntityError("Fecha de préstamo inválida").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("loan_frequency")); v != "" {
		m.LoanFrequency = core.PaymentFrequency(v)
	}
	if v := strings.TrimSpace(r.Form.Get("loan_installment")); v != "" {
		if m.LoanInstallmentUsd, err = parseAmount(v); err != nil {
			UnprocessableEntityError("Cuota de préstamo inválida").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("last_protection_paid")); v != "" {
		if m.LastProtectionPaid, err = core.ParseYearMonth(v); err != nil {
			UnprocessableEntityError("Mes de protección inválido").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("monthly_protection")); v != "" {
		if m.MonthlyProtectionUsd, err = parseAmount(v); err != nil {
			UnprocessableEntityError("Cuota de protección inválida").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("fund_contribution")); v != "" {
		if m.FundContributionUsd, err = parseAmount(v); err != nil {
			UnprocessableEntityError("Aporte al fondo inválido").Write(w)
			return
		}
	}
	if v := strings.TrimSpace(r.Form.Get("cert_total")); v != "" {
		if m.CertificateTotalUsd, err = parseAmount(v); err != nil {
			UnprocessableEntityError("Monto de certificado inválido").Write(w)
			return
		}
	}

	if m.SetupComplete {
		err = s.svc.UpdateSetup(r.Context(), m)
	} else {
		err = s.svc.CompleteSetup(r.Context(), m)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Member setup failed", "error", err, "member_id", memberID)
		UnprocessableEntityError("No se pudo guardar la configuración").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerPassbookRefresh(memberID).
		TriggerSuccessNotification("Configuración guardada").
		BodyHTML(`<div class="success">Configuración guardada</div>`).
		Write(w)
}

// handleAddLoan registers a new loan tranche on top of the unpaid balance.
func (s *Server) handleAddLoan(w http.ResponseWriter, r *http.Request) {
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

	principal, err := parseAmount(r.Form.Get("principal_usd"))
	if err != nil {
		UnprocessableEntityError("Monto de préstamo inválido").Write(w)
		return
	}
	installment, err := parseAmount(r.Form.Get("installment_usd"))
	if err != nil {
		UnprocessableEntityError("Cuota inválida").Write(w)
		return
	}
	startDate, err := parseDateOrToday(r.Form.Get("start_date"))
	if err != nil {
		UnprocessableEntityError("Fecha inválida").Write(w)
		return
	}
	frequency := core.PaymentFrequency(strings.TrimSpace(r.Form.Get("frequency")))

	if err := s.svc.AddLoanTranche(r.Context(), memberID, principal, startDate, frequency, installment); err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			NotFoundError("No existe una libreta con ese número").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "Loan tranche failed", "error", err, "member_id", memberID)
		UnprocessableEntityError("No se pudo registrar el préstamo").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerPassbookRefresh(memberID).
		TriggerSuccessNotification("Préstamo registrado").
		BodyHTML(`<div class="success">Préstamo registrado por ` + core.FormatUSD(principal) + `</div>`).
		Write(w)
}

// handleRekeyMember moves the member to a new savings book number, log and
// all, for when the cooperative reissues a physical passbook.
func (s *Server) handleRekeyMember(w http.ResponseWriter, r *http.Request) {
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
	newID, err := strconv.ParseInt(strings.TrimSpace(r.Form.Get("new_member")), 10, 64)
	if err != nil || newID <= 0 {
		UnprocessableEntityError("Nuevo número de libreta inválido").Write(w)
		return
	}

	if err := s.svc.RekeyMember(r.Context(), memberID, newID); err != nil {
		switch {
		case errors.Is(err, core.ErrMemberNotFound):
			NotFoundError("No existe una libreta con ese número").Write(w)
		case errors.Is(err, core.ErrDuplicateMember):
			UnprocessableEntityError("Ya existe una libreta con el nuevo número").Write(w)
		default:
			slog.ErrorContext(r.Context(), "Member rekey failed", "error", err, "member_id", memberID)
			InternalServerError("No se pudo cambiar el número de libreta").Write(w)
		}
		return
	}

	NewHTMXResponse().
		Header("HX-Redirect", "/passbook?member="+strconv.FormatInt(newID, 10)).
		Write(w)
}

// handleDeleteMember removes the member and their whole log.
func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
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

	if err := s.svc.DeleteMember(r.Context(), memberID); err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			NotFoundError("No existe una libreta con ese número").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "Member deletion failed", "error", err, "member_id", memberID)
		InternalServerError("No se pudo eliminar la libreta").Write(w)
		return
	}

	NewHTMXResponse().
		Header("HX-Redirect", "/").
		Write(w)
}

// handleSetProtectionID enrolls the member in social protection.
func (s *Server) handleSetProtectionID(w http.ResponseWriter, r *http.Request) {
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
	protectionID := sanitizeInput(r.Form.Get("protection_id"))
	if protectionID == "" {
		UnprocessableEntityError("Número de protección social requerido").Write(w)
		return
	}

	if err := s.svc.SetProtectionID(r.Context(), memberID, protectionID); err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			NotFoundError("No existe una libreta con ese número").Write(w)
			return
		}
		InternalServerError("No se pudo guardar el número de protección").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerPassbookRefresh(memberID).
		BodyHTML(`<div class="success">Protección social activada</div>`).
		Write(w)
}
