package api

import (
	"net/http"

	"aisum/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	WriteJSON(w, HealthResponse{Status: "ok", Version: version.String()}, http.StatusOK)
}
