package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"libreta/internal/core"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	data := struct {
		LastMemberID int64
	}{LastMemberID: s.svc.LastMemberID(r.Context())}
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleLogout forgets the remembered member and returns to the login page.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Logout(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Logout failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogin resolves a savings book number and sends the browser to the
// passbook page via HX-Redirect.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
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
		slog.ErrorContext(r.Context(), "Login failed", "error", err, "member_id", memberID)
		InternalServerError("Error al iniciar sesión").Write(w)
		return
	}

	NewHTMXResponse().
		Header("HX-Redirect", "/passbook?member="+strconv.FormatInt(m.ID, 10)).
		Write(w)
}

// handleRegister creates a member profile. Setup details arrive later
// through the setup form.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
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

	m := core.Member{
		ID:                 memberID,
		FirstName:          sanitizeInput(r.Form.Get("first_name")),
		LastName:           sanitizeInput(r.Form.Get("last_name")),
		SocialProtectionID: sanitizeInput(r.Form.Get("protection_id")),
	}
	if err := m.Validate(); err != nil {
		UnprocessableEntityError("Datos inválidos: " + err.Error()).Write(w)
		return
	}

	if err := s.svc.Register(r.Context(), m); err != nil {
		if errors.Is(err, core.ErrDuplicateMember) {
			UnprocessableEntityError("Ya existe una libreta con ese número").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "Member registration failed", "error", err, "member_id", memberID)
		InternalServerError("Error al registrar la libreta").Write(w)
		return
	}

	NewHTMXResponse().
		Header("HX-Redirect", "/passbook?member="+strconv.FormatInt(memberID, 10)).
		Write(w)
}
