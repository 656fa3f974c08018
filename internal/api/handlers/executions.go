package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/go-chi/chi/v5"
)

// ══════════════════════════════════════════════════════════════
// ── Execution Handlers ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// GET /ai/v1/executions?limit=&offset=&agentId=&status=
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ExecutionFilter{AgentID: q.Get("agentId")}

	switch s := models.ExecutionStatus(q.Get("status")); s {
	case "", models.ExecutionSuccess, models.ExecutionError:
		filter.Status = s
	default:
		respondError(w, http.StatusBadRequest, "status must be success or error")
		return
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.Executions.ListExecutions(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.ExecutionSummary{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GET /ai/v1/executions/{id}
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadExecution(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GET /ai/v1/executions/{id}/download
func (h *Handlers) DownloadExecution(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadExecution(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ai-execution-%s.json"`, rec.ID))
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, router.PrettyJSON(rec))
}

func (h *Handlers) loadExecution(w http.ResponseWriter, r *http.Request) (*models.ExecutionRecord, bool) {
	id := chi.URLParam(r, "id")
	rec, err := h.Executions.GetExecution(r.Context(), id)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, "execution not found")
		} else {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return rec, true
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
