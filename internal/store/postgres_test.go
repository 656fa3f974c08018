package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Set AI_GATEWAY_TEST_DATABASE_URL to a disposable database to run.
func TestPostgresStore_ExecutionContract(t *testing.T) {
	url := os.Getenv("AI_GATEWAY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AI_GATEWAY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, url, 4)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, `TRUNCATE ai_executions`)
	require.NoError(t, err)

	runExecutionStoreSuite(t, s)
}
