// Package server exposes the relay's HTTP surface: the two client dialect
// routes, model listing and health endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"codexrelay/internal/codec"
	"codexrelay/internal/config"
	"codexrelay/internal/limits"
	"codexrelay/internal/transform"
	"codexrelay/internal/upstream"
)

// Server is the relay HTTP server.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	upstream   *upstream.Client
	gate       *limits.Gate
	encodeOpts transform.EncodeOptions

	anthropic codec.Codec
	chat      codec.Codec
}

// New creates a server with all routes registered.
func New(cfg *config.Config) *Server {
	s := &Server{
		cfg: cfg,
		upstream: upstream.NewClient(upstream.Options{
			BaseURL:    cfg.UpstreamURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.UpstreamTimeout,
			MaxRetries: cfg.MaxRetries,
			Retry429:   cfg.Retry429,
			Verbose:    cfg.Verbose,
		}),
		gate: limits.NewGate(cfg.MaxConcurrency),
		encodeOpts: transform.EncodeOptions{
			DefaultModel:  cfg.Model,
			AllowedModels: config.AllowedModels,
			DefaultEffort: cfg.Reasoning,
			Instructions:  cfg.Instructions,
			Compat:        cfg.Compat,
			Render: transform.RenderOptions{
				Policy:   transform.PayloadPolicy(cfg.ToolPayload),
				MaxChars: cfg.ToolPayloadMaxChars,
			},
		},
		anthropic: codec.NewAnthropicCodec(),
		chat:      codec.NewChatCodec(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("/", s.handleNotFound)

	handler := corsMiddleware(authMiddleware(cfg, requestLogMiddleware(mux)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 0, // streaming responses are open-ended
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, s.anthropic)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, s.chat)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isAnthropicRequest(r) {
		codec.WriteAnthropicError(w, http.StatusNotFound, "not_found_error", "Not found")
		return
	}
	codec.WriteOpenAIError(w, http.StatusNotFound, "Not found")
}
