package api

import (
	"net/http"

	"aisum/internal/auth"
)

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/v1/health", s.handleHealth)

	summarize := s.shedder.Middleware(s.requireScope(auth.ScopeSummarize, http.HandlerFunc(s.handleSummarize)))
	s.router.Handle("/summarize", summarize)
	s.router.Handle("/api/v1/summarize-issue", summarize)
}
