package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/lanerush/pf-engine-go/internal/ledger"
	"github.com/lanerush/pf-engine-go/internal/session"
	"github.com/lanerush/pf-engine-go/internal/lib/logger/sl"
)

// ErrorBuilder constructs structured errors with context.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// respondError maps a domain error to its HTTP status and structured
// body. Unrecognized errors become opaque 500s; their detail stays in
// the log, not the response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	status := http.StatusInternalServerError
	errType := ErrTypeInternal
	message := "internal server error"

	switch {
	case errors.Is(err, session.ErrValidation):
		status, errType, message = http.StatusBadRequest, ErrTypeValidation, err.Error()
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status, errType, message = http.StatusPaymentRequired, ErrTypeInsufficientFunds, "insufficient funds"
	case errors.Is(err, session.ErrSessionNotFound):
		status, errType, message = http.StatusNotFound, ErrTypeSessionNotFound, "session not found"
	case errors.Is(err, session.ErrAlreadyResolved):
		status, errType, message = http.StatusConflict, ErrTypeAlreadyResolved, "session already resolved"
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.Log(r.Context(), level, "request failed",
		sl.Err(err),
		slog.String("type", errType),
		slog.String("category", string(GetErrorCategory(errType))),
		slog.Int("status", status),
		slog.String("request_id", requestID),
		slog.String("path", r.URL.Path),
	)

	engineErr := NewError(errType, message).
		WithRequestID(requestID).
		Build()

	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", errType)
	render.Status(r, status)
	render.JSON(w, r, engineErr)
}

// respondValidationError reports a malformed request body field.
func (s *Server) respondValidationError(w http.ResponseWriter, r *http.Request, detail string) {
	requestID := middleware.GetReqID(r.Context())

	s.log.Warn("request validation failed",
		slog.String("detail", detail),
		slog.String("request_id", requestID),
		slog.String("path", r.URL.Path),
	)

	engineErr := NewError(ErrTypeValidation, detail).
		WithRequestID(requestID).
		Build()

	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", ErrTypeValidation)
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, engineErr)
}

// recoverer converts panics into structured 500s instead of dropped
// connections.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := middleware.GetReqID(r.Context())
				s.log.Error("panic recovered",
					slog.Any("panic", rvr),
					slog.String("request_id", requestID),
					slog.String("path", r.URL.Path),
				)
				engineErr := NewError(ErrTypeInternal, "internal server error").
					WithRequestID(requestID).
					Build()
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, engineErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
