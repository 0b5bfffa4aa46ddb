package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/lanerush/pf-engine-go/internal/lanes"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.respondValidationError(w, r, "malformed request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondValidationError(w, r, validationDetail(err))
		return
	}

	res, err := s.sessions.Create(r.Context(), req.Owner, req.ClientSeed, req.Tier, req.Wager)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateSessionResponse{Session: res, EngineVersion: EngineVersion})
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	var req ActivateSessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.respondValidationError(w, r, "malformed request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondValidationError(w, r, validationDetail(err))
		return
	}

	res, err := s.sessions.Activate(r.Context(), req.Owner, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	render.JSON(w, r, ActivateSessionResponse{Result: res, EngineVersion: EngineVersion})
}

func (s *Server) handleResolveSession(w http.ResponseWriter, r *http.Request) {
	var req ResolveSessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.respondValidationError(w, r, "malformed request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondValidationError(w, r, validationDetail(err))
		return
	}

	res, err := s.sessions.Resolve(r.Context(), req.Owner, chi.URLParam(r, "id"), req.ReachedLane)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	render.JSON(w, r, ResolveSessionResponse{Result: res, EngineVersion: EngineVersion})
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		s.respondValidationError(w, r, "owner query parameter is required")
		return
	}

	view, err := s.sessions.Active(r.Context(), owner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	render.JSON(w, r, ActiveSessionResponse{Session: view, EngineVersion: EngineVersion})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, TablesResponse{Tables: lanes.AllTables(), EngineVersion: EngineVersion})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		s.respondValidationError(w, r, "owner query parameter is required")
		return
	}

	balance, err := s.sessions.Balance(r.Context(), owner)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"owner":          owner,
		"balance":        balance,
		"engine_version": EngineVersion,
	})
}

// validationDetail flattens the first validator failure into a short
// caller-facing message.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return "field " + fe.Field() + " is required"
		case "max":
			return "field " + fe.Field() + " exceeds maximum length"
		default:
			return "field " + fe.Field() + " is invalid"
		}
	}
	return "invalid request"
}
