// In-memory store, used for tests and when no database is configured.
// Agents are seeded at construction and never change afterwards.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// MemoryStore implements AgentStore and ExecutionStore with in-memory maps.
type MemoryStore struct {
	agents map[string]models.AgentSpec // read-only after construction

	mu         sync.RWMutex
	executions map[string]*models.ExecutionRecord // key: id
}

// NewMemoryStore creates a store seeded with agents.
func NewMemoryStore(agents ...models.AgentSpec) *MemoryStore {
	m := &MemoryStore{
		agents:     make(map[string]models.AgentSpec, len(agents)),
		executions: make(map[string]*models.ExecutionRecord),
	}
	for _, a := range agents {
		if a.ID == "" {
			log.Warn().Str("name", a.Name).Msg("Skipping agent without id")
			continue
		}
		m.agents[a.ID] = a
	}
	return m
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// ── Agent Store ─────────────────────────────────────────────

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*models.AgentSpec, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	a.InputSchema = append([]models.InputField(nil), a.InputSchema...)
	return &a, nil
}

func (m *MemoryStore) ListAgents(_ context.Context) ([]models.AgentSpec, error) {
	result := make([]models.AgentSpec, 0, len(m.agents))
	for _, a := range m.agents {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ── Execution Store ─────────────────────────────────────────

func (m *MemoryStore) CreateExecution(_ context.Context, rec *models.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *rec
	copy.InputsRedacted = cloneStrings(rec.InputsRedacted)
	m.executions[rec.ID] = &copy
	return nil
}

func (m *MemoryStore) GetExecution(_ context.Context, id string) (*models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.executions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "execution", Key: id}
	}
	copy := *rec
	copy.InputsRedacted = cloneStrings(rec.InputsRedacted)
	return &copy, nil
}

func (m *MemoryStore) ListExecutions(_ context.Context, filter models.ExecutionFilter) ([]models.ExecutionSummary, error) {
	filter = normalizeFilter(filter)

	m.mu.RLock()
	var matched []*models.ExecutionRecord
	for _, rec := range m.executions {
		if filter.AgentID != "" && rec.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		matched = append(matched, rec)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	result := []models.ExecutionSummary{}
	for i := filter.Offset; i < len(matched) && len(result) < filter.Limit; i++ {
		result = append(result, matched[i].Summary())
	}
	return result, nil
}

func (m *MemoryStore) ListExecutionsBefore(_ context.Context, cutoff time.Time) ([]models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.ExecutionRecord
	for _, rec := range m.executions {
		if rec.CreatedAt.Before(cutoff) {
			result = append(result, *rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) DeleteExecutionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.executions {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.executions, id)
			n++
		}
	}
	return n, nil
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
