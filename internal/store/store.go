// Package store provides the storage interfaces and implementations for the
// AI gateway: a read-only agent store and the append-only execution log.
//
// The in-memory store backs tests and the zero-config binary; SQLite is the
// default persistent audit sink; PostgreSQL serves shared deployments.
package store

import (
	"context"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
)

// AgentStore resolves agent specifications. The gateway never writes agents.
type AgentStore interface {
	GetAgent(ctx context.Context, id string) (*models.AgentSpec, error)
	ListAgents(ctx context.Context) ([]models.AgentSpec, error)
}

// ExecutionStore persists execution records. Records are immutable once
// created; the only deletion is the bulk retention purge.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)
	// ListExecutions returns summaries, newest first.
	ListExecutions(ctx context.Context, filter models.ExecutionFilter) ([]models.ExecutionSummary, error)
	// ListExecutionsBefore returns full records created before cutoff, oldest first.
	ListExecutionsBefore(ctx context.Context, cutoff time.Time) ([]models.ExecutionRecord, error)
	// DeleteExecutionsBefore removes every record created before cutoff and
	// reports how many rows were deleted. Repeated calls are safe.
	DeleteExecutionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ── Filter helpers ──────────────────────────────────────────

// DefaultListLimit is used when a filter carries no limit.
const DefaultListLimit = 20

// MaxListLimit caps a single page.
const MaxListLimit = 200

// normalizeFilter applies default and maximum page sizes.
func normalizeFilter(f models.ExecutionFilter) models.ExecutionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
