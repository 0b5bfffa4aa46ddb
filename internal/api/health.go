package api

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:        "healthy",
		EngineVersion: EngineVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Uptime:        time.Since(s.startTime).String(),
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:        "alive",
		EngineVersion: EngineVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
