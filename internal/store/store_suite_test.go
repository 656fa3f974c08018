package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id, agentID string, status models.ExecutionStatus, createdAt time.Time) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:             id,
		AgentID:        agentID,
		AgentName:      "Agent " + agentID,
		Provider:       "ollama",
		Model:          "mistral",
		Status:         status,
		DurationMs:     42,
		InputsRedacted: map[string]string{"topic": "go", "api_key": models.RedactedValue},
		InputPreview:   `{"topic": "go"}`,
		OutputFullText: "full output " + id,
		OutputPreview:  "full output " + id,
		OutputMode:     models.OutputText,
		CreatedAt:      createdAt.UTC().Truncate(time.Microsecond),
	}
}

// runExecutionStoreSuite exercises the ExecutionStore contract shared by all
// implementations.
func runExecutionStoreSuite(t *testing.T, s ExecutionStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("create and get", func(t *testing.T) {
		rec := sampleRecord("get-1", "a1", models.ExecutionSuccess, now)
		require.NoError(t, s.CreateExecution(ctx, rec))

		got, err := s.GetExecution(ctx, "get-1")
		require.NoError(t, err)
		assert.Equal(t, rec.AgentName, got.AgentName)
		assert.Equal(t, rec.OutputFullText, got.OutputFullText)
		assert.Equal(t, models.RedactedValue, got.InputsRedacted["api_key"])
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", got.CreatedAt, rec.CreatedAt)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetExecution(ctx, "does-not-exist")
		var nf *ErrNotFound
		assert.True(t, errors.As(err, &nf), "want ErrNotFound, got %v", err)
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			status := models.ExecutionSuccess
			if i%2 == 1 {
				status = models.ExecutionError
			}
			rec := sampleRecord(fmt.Sprintf("list-%d", i), "lister", status, now.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.CreateExecution(ctx, rec))
		}

		all, err := s.ListExecutions(ctx, models.ExecutionFilter{AgentID: "lister"})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, "list-4", all[0].ID)
		assert.Equal(t, "list-0", all[4].ID)

		errs, err := s.ListExecutions(ctx, models.ExecutionFilter{AgentID: "lister", Status: models.ExecutionError})
		require.NoError(t, err)
		assert.Len(t, errs, 2)

		page, err := s.ListExecutions(ctx, models.ExecutionFilter{AgentID: "lister", Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "list-3", page[0].ID)
	})

	t.Run("delete before is idempotent", func(t *testing.T) {
		old := now.AddDate(0, 0, -40)
		require.NoError(t, s.CreateExecution(ctx, sampleRecord("old-1", "sweeper", models.ExecutionSuccess, old)))
		require.NoError(t, s.CreateExecution(ctx, sampleRecord("old-2", "sweeper", models.ExecutionError, old.Add(time.Hour))))
		require.NoError(t, s.CreateExecution(ctx, sampleRecord("fresh", "sweeper", models.ExecutionSuccess, now)))

		cutoff := now.AddDate(0, 0, -30)
		expired, err := s.ListExecutionsBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, expired, 2)
		assert.Equal(t, "old-1", expired[0].ID)

		n, err := s.DeleteExecutionsBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.DeleteExecutionsBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		_, err = s.GetExecution(ctx, "fresh")
		assert.NoError(t, err)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
