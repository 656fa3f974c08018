package executions

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAgent = &models.AgentSpec{
	ID:    "weather",
	Name:  "Weather",
	Model: "mistral",
	InputSchema: []models.InputField{
		{Key: "city", Required: true},
		{Key: "api_key", Env: "WEATHER_API_KEY"},
		{Key: "unused_secret", Env: "OTHER"},
	},
}

func TestRedact(t *testing.T) {
	in := map[string]string{"city": "Lyon", "api_key": "sk-live-123"}
	got := Redact(testAgent.InputSchema, in)

	assert.Equal(t, "Lyon", got["city"])
	assert.Equal(t, models.RedactedValue, got["api_key"])
	_, present := got["unused_secret"]
	assert.False(t, present, "absent env field should stay absent")
	assert.Equal(t, "sk-live-123", in["api_key"], "input map must not be modified")
}

func TestRecord_RedactsEnvButKeepsOthers(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLogger(s)
	ctx := context.Background()

	dispatch := map[string]string{"city": "Lyon", "api_key": "sk-live-123"}
	id, err := l.Record(ctx, Entry{
		Agent:    testAgent,
		Provider: "ollama",
		Model:    "mistral",
		Inputs:   dispatch,
		Duration: 1500 * time.Millisecond,
		FullText: "Sunny",
	})
	require.NoError(t, err)

	rec, err := s.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, rec.Status)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, models.RedactedValue, rec.InputsRedacted["api_key"])
	assert.NotContains(t, rec.InputPreview, "sk-live-123")
	assert.Contains(t, rec.InputPreview, "Lyon")
	assert.Equal(t, "sk-live-123", dispatch["api_key"])
	assert.Equal(t, models.OutputText, rec.OutputMode)
}

func TestRecord_PostProcessedTextSupersedes(t *testing.T) {
	rec := NewLogger(store.NewMemoryStore()).Build(Entry{
		Agent:             testAgent,
		FullText:          "primary",
		PostProcessedText: "X",
	})
	assert.Equal(t, "X", rec.OutputFullText)
	assert.Equal(t, "X", rec.OutputPreview)
}

func TestRecord_Errors(t *testing.T) {
	l := NewLogger(store.NewMemoryStore())

	cases := []struct {
		err  *models.RunError
		want string
	}{
		{&models.RunError{Kind: models.ErrModelNotFound, Model: "llama9"}, "model_not_found"},
		{&models.RunError{Kind: models.ErrStreamingFailed}, "Streaming failed"},
		{models.NewRunError(models.ErrTransport, "ollama: status 500"), "ollama: status 500"},
	}
	for _, tc := range cases {
		rec := l.Build(Entry{Agent: testAgent, Err: tc.err})
		assert.Equal(t, models.ExecutionError, rec.Status)
		assert.Equal(t, tc.want, rec.ErrorMessage)
		assert.Empty(t, rec.OutputFullText)
		assert.Empty(t, rec.OutputPreview)
	}
}

func TestRecord_ErrorKeepsPartialOutput(t *testing.T) {
	l := NewLogger(store.NewMemoryStore())

	rec := l.Build(Entry{
		Agent:    testAgent,
		Err:      models.NewRunError(models.ErrTransport, "client disconnected during streaming"),
		FullText: "Cloudy with <b>sun</b>",
	})
	assert.Equal(t, models.ExecutionError, rec.Status)
	assert.Equal(t, "Cloudy with <b>sun</b>", rec.OutputFullText)
	assert.Equal(t, "Cloudy with sun", rec.OutputPreview)
}

func TestSweep_Idempotent(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i, age := range []int{45, 31, 29, 0} {
		old := NewLogger(s).WithClock(func() time.Time { return now.AddDate(0, 0, -age) })
		_, err := old.Record(ctx, Entry{Agent: testAgent, FullText: strings.Repeat("x", i+1)})
		require.NoError(t, err)
	}

	l := NewLogger(s).WithClock(func() time.Time { return now })
	n, err := l.Sweep(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = l.Sweep(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	left, err := s.ListExecutions(ctx, models.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestSweep_NonPositiveDaysUsesDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.AddDate(0, 0, -30), Cutoff(now, 0))
	assert.Equal(t, now.AddDate(0, 0, -30), Cutoff(now, -5))
	assert.Equal(t, now.AddDate(0, 0, -7), Cutoff(now, 7))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "Hello world", Preview("  <p>Hello <b>world</b></p>\n"))
	assert.Equal(t, "keep", Preview("<script>alert(1)</script>keep<style>p{}</style>"))
	assert.Equal(t, "a < b & c", Preview("a < b &amp; c"))

	long := strings.Repeat("é", 500)
	got := Preview(long)
	assert.Equal(t, models.PreviewLimit, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, Ellipsis))

	exact := strings.Repeat("a", models.PreviewLimit)
	assert.Equal(t, exact, Preview(exact))
}
