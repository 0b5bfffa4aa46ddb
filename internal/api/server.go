// Package api exposes the session engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/lanerush/pf-engine-go/internal/session"
)

// Server handles HTTP requests.
type Server struct {
	sessions  *session.Manager
	log       *slog.Logger
	validate  *validator.Validate
	timeout   time.Duration
	startTime time.Time
}

func NewServer(sessions *session.Manager, log *slog.Logger, timeout time.Duration) *Server {
	return &Server{
		sessions:  sessions,
		log:       log,
		validate:  validator.New(),
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// Routes builds the router with the middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/active", s.handleActiveSession)
		r.Post("/sessions/{id}/activate", s.handleActivateSession)
		r.Post("/sessions/{id}/resolve", s.handleResolveSession)
		r.Get("/tables", s.handleTables)
		r.Get("/balance", s.handleBalance)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
