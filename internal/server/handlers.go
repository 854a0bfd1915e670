package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"codexrelay/internal/codec"
	"codexrelay/internal/stream"
	"codexrelay/internal/transform"
	"codexrelay/internal/types"
)

// relay is the shared request path for both dialects: decode, admit,
// encode, send upstream, translate back.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, c codec.Codec) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Encoder.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		c.Encoder.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	cr, err := c.Decoder.Decode(body)
	if err != nil {
		c.Encoder.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	model := cr.RequestedModel
	if model == "" {
		model = s.cfg.Model
	}

	// The gate is held for the whole upstream exchange, retries included.
	if err := s.gate.Acquire(r.Context()); err != nil {
		return // client gone while waiting
	}
	defer s.gate.Release()

	payload := transform.FromCanonical(cr, s.encodeOpts)
	if s.cfg.Verbose {
		slog.Info("upstream.request",
			"requested_model", model,
			"upstream_model", payload.Model,
			"reasoning", payload.Reasoning.Effort,
			"input_items", len(payload.Input),
			"tools", len(payload.Tools),
			"stream", cr.Stream,
			"in_flight", s.gate.InFlight())
	}

	resp, uerr := s.upstream.DoWithRetry(r.Context(), payload)
	if uerr != nil {
		if uerr.StatusCode == 499 {
			return // client closed the connection, nowhere to write
		}
		c.Encoder.WriteError(w, uerr.StatusCode, uerr.Message)
		return
	}
	defer resp.Body.Close()

	reader := stream.NewReader(resp.Body)
	if cr.Stream {
		c.Encoder.WriteStreamHeaders(w, http.StatusOK)
		c.Encoder.StreamTranslator(w, model).Translate(reader)
		return
	}

	agg, err := stream.Collect(reader)
	if err != nil && agg.Text == "" && len(agg.Calls) == 0 {
		c.Encoder.WriteError(w, http.StatusBadGateway, "upstream stream aborted: "+err.Error())
		return
	}
	c.Encoder.WriteCollected(w, http.StatusOK, &agg, model)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	data := make([]types.ModelInfo, 0, len(s.modelIDs()))
	for _, id := range s.modelIDs() {
		data = append(data, types.ModelInfo{ID: id, Object: "model", OwnedBy: "system"})
	}
	codec.WriteJSON(w, http.StatusOK, types.ModelListResponse{Object: "list", Data: data})
}

func (s *Server) modelIDs() []string {
	// default model first, the rest of the allow list after
	ids := []string{s.cfg.Model}
	for id := range s.allowedModels() {
		if id != s.cfg.Model {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) allowedModels() map[string]bool {
	return s.encodeOpts.AllowedModels
}
