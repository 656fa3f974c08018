package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/agentoven/aigateway/internal/executor"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// ══════════════════════════════════════════════════════════════
// ── Runs ─────────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// POST /ai/v1/run
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	plan, ok := h.prepare(w, r)
	if !ok {
		return
	}

	res := h.Executor.Run(r.Context(), plan)
	if res.ExecutionID != "" {
		w.Header().Set("X-Execution-Id", res.ExecutionID)
	}
	respondJSON(w, runStatus(res.Final), res.Final)
}

// POST /ai/v1/run/stream
func (h *Handlers) RunStream(w http.ResponseWriter, r *http.Request) {
	plan, ok := h.prepare(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	startSSE(w, flusher)

	h.Executor.Stream(r.Context(), plan, func(ev models.StreamEvent) error {
		return writeSSE(w, flusher, ev)
	})
}

// prepare decodes the run request and builds the plan. Rejections are
// answered here, before any stream starts.
func (h *Handlers) prepare(w http.ResponseWriter, r *http.Request) (*executor.Plan, bool) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agentId is required")
		return nil, false
	}

	plan, err := h.Executor.Prepare(r.Context(), req)
	if err != nil {
		var re *models.RunError
		switch {
		case errors.As(err, &re) && re.Kind == models.ErrNotFound:
			respondError(w, http.StatusNotFound, re.Detail)
		case errors.As(err, &re) && re.Kind == models.ErrInvalidInput:
			respondError(w, http.StatusBadRequest, re.Detail)
		default:
			log.Error().Err(err).Str("agent_id", req.AgentID).Msg("Failed to prepare run")
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return plan, true
}

// runStatus maps a terminal event to the JSON endpoint's status code.
func runStatus(ev models.StreamEvent) int {
	if ev.Kind != models.EventError {
		return http.StatusOK
	}
	if ev.Err != nil && ev.Err.Kind == models.ErrMissingConfiguration {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// ── Model pull ───────────────────────────────────────────────

type pullRequest struct {
	Model string `json:"model"`
}

// POST /ai/v1/ollama/pull/stream
func (h *Handlers) PullModelStream(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		respondError(w, http.StatusBadRequest, "model is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	startSSE(w, flusher)

	err := h.Relay.PullModel(r.Context(), h.Registry.OllamaURL(), req.Model, func(raw json.RawMessage) error {
		return writeSSE(w, flusher, raw)
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		log.Warn().Err(err).Str("model", req.Model).Msg("Model pull failed")
		writeSSE(w, flusher, map[string]string{"error": err.Error()})
		return
	}
	writeSSE(w, flusher, map[string]bool{"done": true})
}

// ── SSE ──────────────────────────────────────────────────────

func startSSE(w http.ResponseWriter, flusher http.Flusher) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
