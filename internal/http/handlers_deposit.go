package http

import (
	"errors"
	"log/slog"
	"net/http"

	"libreta/internal/core"
	"libreta/internal/receipt"
)

// handleCreateDeposit runs one bulk deposit through the distribution engine
// and books the resulting rows.
func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
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
	in, err := parseDepositInput(r.Form)
	if err != nil {
		UnprocessableEntityError("Datos del depósito inválidos: " + err.Error()).Write(w)
		return
	}

	g, err := s.svc.RegisterDeposit(r.Context(), memberID, in)
	if err != nil {
		writeDistributionError(w, r, err, memberID)
		return
	}

	NewHTMXResponse().
		TriggerDepositCreated(memberID).
		TriggerPassbookRefresh(memberID).
		TriggerFormReset().
		BodyHTML(`<div class="success">Depósito registrado: ` + core.FormatBs(g.TotalBs()) + `</div>`).
		Write(w)
}

// handleCreateWithdrawal books a savings withdrawal as a single negative row.
func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
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
	date, err := parseDateOrToday(r.Form.Get("date"))
	if err != nil {
		UnprocessableEntityError("Fecha inválida").Write(w)
		return
	}
	amountBs, err := parseAmount(r.Form.Get("amount_bs"))
	if err != nil {
		UnprocessableEntityError("Monto inválido").Write(w)
		return
	}
	rate, err := parseAmount(r.Form.Get("rate"))
	if err != nil {
		UnprocessableEntityError("Tasa inválida").Write(w)
		return
	}
	description := sanitizeInput(r.Form.Get("description"))

	g, err := s.svc.RegisterWithdrawal(r.Context(), memberID, date, amountBs, rate, description)
	if err != nil {
		writeDistributionError(w, r, err, memberID)
		return
	}

	NewHTMXResponse().
		TriggerGroupChanged(memberID).
		TriggerPassbookRefresh(memberID).
		TriggerFormReset().
		BodyHTML(`<div class="success">Retiro registrado: ` + core.FormatBs(-g.TotalBs()) + `</div>`).
		Write(w)
}

// handleEditGroup swaps one operation's rows for a re-run of the
// distribution with corrected inputs.
func (s *Server) handleEditGroup(w http.ResponseWriter, r *http.Request) {
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
	oldIDs := splitIDs(r.Form.Get("ids"))
	if len(oldIDs) == 0 {
		UnprocessableEntityError("Operación a editar no indicada").Write(w)
		return
	}
	in, err := parseDepositInput(r.Form)
	if err != nil {
		UnprocessableEntityError("Datos del depósito inválidos: " + err.Error()).Write(w)
		return
	}

	if _, err := s.svc.EditGroup(r.Context(), memberID, oldIDs, in); err != nil {
		writeDistributionError(w, r, err, memberID)
		return
	}

	NewHTMXResponse().
		TriggerGroupChanged(memberID).
		TriggerPassbookRefresh(memberID).
		BodyHTML(`<div class="success">Operación corregida</div>`).
		Write(w)
}

// handleDeleteGroup removes one operation's rows from the log.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
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
	ids := splitIDs(r.Form.Get("ids"))
	if len(ids) == 0 {
		UnprocessableEntityError("Operación a eliminar no indicada").Write(w)
		return
	}

	if err := s.svc.DeleteGroup(r.Context(), memberID, ids); err != nil {
		slog.ErrorContext(r.Context(), "Group delete failed", "error", err, "member_id", memberID)
		InternalServerError("No se pudo eliminar la operación").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerGroupChanged(memberID).
		TriggerPassbookRefresh(memberID).
		BodyHTML(`<div class="success">Operación eliminada</div>`).
		Write(w)
}

// handleReceipt renders the printable slip for one operation.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	memberID, err := parseMemberID(r.URL.Query())
	if err != nil {
		http.Error(w, "invalid member id", http.StatusUnprocessableEntity)
		return
	}
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		http.Error(w, "missing transaction ids", http.StatusUnprocessableEntity)
		return
	}

	snap, err := s.svc.SnapshotOf(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			http.NotFound(w, r)
			return
		}
		slog.ErrorContext(r.Context(), "Receipt snapshot failed", "error", err, "member_id", memberID)
		http.Error(w, "error loading passbook", http.StatusInternalServerError)
		return
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var g core.Group
	for _, tx := range snap.History {
		if _, ok := wanted[tx.ID]; ok {
			if len(g.Txs) == 0 {
				g.Key = tx.Key()
			}
			g.Txs = append(g.Txs, tx)
		}
	}
	if len(g.Txs) == 0 {
		http.NotFound(w, r)
		return
	}

	rate, _ := snap.Rates.Rate(g.Txs[0].Date)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(receipt.Render(snap.Member, g, rate)))
}

// writeDistributionError maps engine errors to user-facing messages.
func writeDistributionError(w http.ResponseWriter, r *http.Request, err error, memberID int64) {
	var insufficient *core.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		UnprocessableEntityError("Fondos insuficientes: faltan " + core.FormatUSD(insufficient.ShortfallUsd)).Write(w)
	case errors.Is(err, core.ErrOverpayment):
		UnprocessableEntityError("El pago de certificado excede el monto pendiente").Write(w)
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidRate):
		UnprocessableEntityError("Monto o tasa inválidos").Write(w)
	case errors.Is(err, core.ErrMemberNotFound):
		NotFoundError("No existe una libreta con ese número").Write(w)
	default:
		slog.ErrorContext(r.Context(), "Deposit operation failed", "error", err, "member_id", memberID)
		InternalServerError("Error al guardar la operación").Write(w)
	}
}
