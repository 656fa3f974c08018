// Package handlers implements the HTTP handlers for the AI gateway: the run
// endpoints (JSON and SSE), the model pull stream and execution browsing.
package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/agentoven/aigateway/internal/executor"
	"github.com/agentoven/aigateway/internal/options"
	"github.com/agentoven/aigateway/internal/relay"
	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Executor   *executor.Executor
	Agents     store.AgentStore
	Executions store.ExecutionStore
	Relay      *relay.Relay
	Registry   *router.Registry
	Options    *options.Resolver
}

// New creates a new Handlers instance with all dependencies.
func New(
	exec *executor.Executor,
	agents store.AgentStore,
	execs store.ExecutionStore,
	rl *relay.Relay,
	reg *router.Registry,
	opts *options.Resolver,
) *Handlers {
	return &Handlers{
		Executor:   exec,
		Agents:     agents,
		Executions: execs,
		Relay:      rl,
		Registry:   reg,
		Options:    opts,
	}
}

// ── Health ───────────────────────────────────────────────────

// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Executions.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check: execution store unreachable")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GET /ai/v1/ping
func (h *Handlers) Ping(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Catalog ──────────────────────────────────────────────────

// GET /ai/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Agents.ListAgents(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []models.AgentSpec{}
	}
	respondJSON(w, http.StatusOK, agents)
}

// GET /ai/v1/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.Registry.Status())
}

type presetView struct {
	ID      string                 `json:"id"`
	Label   string                 `json:"label"`
	Options models.SamplingOptions `json:"options"`
}

// GET /ai/v1/presets
func (h *Handlers) ListPresets(w http.ResponseWriter, _ *http.Request) {
	presets := h.Options.Presets()
	out := make([]presetView, 0, len(presets))
	for id, p := range presets {
		out = append(out, presetView{ID: id, Label: p.Label, Options: p.Options})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	respondJSON(w, http.StatusOK, map[string]any{
		"default": h.Options.PresetID(""),
		"presets": out,
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
