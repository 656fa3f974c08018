package store

import (
	"context"
	"errors"
	"testing"

	"github.com/agentoven/aigateway/pkg/models"
)

func TestMemoryStore_ExecutionContract(t *testing.T) {
	runExecutionStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_GetAgent(t *testing.T) {
	s := NewMemoryStore(
		models.AgentSpec{ID: "writer", Name: "Writer", Model: "mistral",
			InputSchema: []models.InputField{{Key: "topic", Required: true}}},
		models.AgentSpec{Name: "no id"},
	)
	ctx := context.Background()

	a, err := s.GetAgent(ctx, "writer")
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if a.Name != "Writer" {
		t.Errorf("Name = %q, want Writer", a.Name)
	}

	// Mutating the returned copy must not leak into the store.
	a.InputSchema[0].Key = "changed"
	again, _ := s.GetAgent(ctx, "writer")
	if again.InputSchema[0].Key != "topic" {
		t.Errorf("InputSchema mutated through returned copy")
	}

	_, err = s.GetAgent(ctx, "ghost")
	var nf *ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != "agent" {
		t.Errorf("GetAgent(ghost) error = %v, want agent ErrNotFound", err)
	}

	all, _ := s.ListAgents(ctx)
	if len(all) != 1 {
		t.Errorf("ListAgents() = %d agents, want 1 (agent without id skipped)", len(all))
	}
}

func TestMemoryStore_RecordsAreCopied(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &models.ExecutionRecord{ID: "x", InputsRedacted: map[string]string{"k": "v"}}
	if err := s.CreateExecution(ctx, rec); err != nil {
		t.Fatalf("CreateExecution() error = %v", err)
	}
	rec.InputsRedacted["k"] = "mutated"

	got, _ := s.GetExecution(ctx, "x")
	if got.InputsRedacted["k"] != "v" {
		t.Errorf("stored record mutated: %q", got.InputsRedacted["k"])
	}
}
