package server

import (
	"net/http"

	"codexrelay/internal/codec"
)

const serviceName = "codexrelay"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	codec.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   serviceName,
		"model":     s.cfg.Model,
		"reasoning": s.cfg.Reasoning,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	missing := s.cfg.MissingForReady()
	if len(missing) > 0 {
		codec.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "error",
			"service": serviceName,
			"missing": missing,
		})
		return
	}
	codec.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
	})
}
