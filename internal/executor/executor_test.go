package executor_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentoven/aigateway/internal/executions"
	"github.com/agentoven/aigateway/internal/executor"
	"github.com/agentoven/aigateway/internal/options"
	"github.com/agentoven/aigateway/internal/postproc"
	"github.com/agentoven/aigateway/internal/relay"
	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/internal/secrets"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	exec  *executor.Executor
	store *store.MemoryStore
}

func newFixture(t *testing.T, cfg router.ProviderConfig, sec secrets.Store, agents ...models.AgentSpec) fixture {
	t.Helper()
	s := store.NewMemoryStore(agents...)
	rl := relay.New(router.NewInvoker(), postproc.New(2*time.Second))
	ex := executor.NewExecutor(
		s,
		router.NewRegistry(cfg),
		options.NewResolver(options.BuiltinPresets(), "", nil),
		sec,
		rl,
		executions.NewLogger(s),
	)
	return fixture{exec: ex, store: s}
}

// generateStub serves /api/generate and records every prompt it receives.
type generateStub struct {
	srv     *httptest.Server
	hits    atomic.Int32
	prompts chan string
}

func newGenerateStub(t *testing.T, status int, lines ...string) *generateStub {
	t.Helper()
	g := &generateStub{prompts: make(chan string, 8)}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		var body struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.prompts <- body.Model + "|" + body.Prompt
		w.WriteHeader(status)
		for _, l := range lines {
			_, _ = io.WriteString(w, l+"\n")
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func collect(events *[]models.StreamEvent) relay.Emitter {
	return func(ev models.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func onlyExecution(t *testing.T, s *store.MemoryStore) *models.ExecutionRecord {
	t.Helper()
	list, err := s.ListExecutions(context.Background(), models.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	rec, err := s.GetExecution(context.Background(), list[0].ID)
	require.NoError(t, err)
	return rec
}

var weatherAgent = models.AgentSpec{
	ID:           "weather",
	Name:         "Weather",
	SystemPrompt: "You report weather.",
	InputSchema: []models.InputField{
		{Key: "city", Required: true},
		{Key: "api_key", Required: true, Env: "WEATHER_API_KEY"},
	},
}

func TestPrepare_UnknownAgent(t *testing.T) {
	f := newFixture(t, router.ProviderConfig{}, secrets.MapStore{})

	_, err := f.exec.Prepare(context.Background(), models.RunRequest{AgentID: "ghost"})
	re := models.AsRunError(err)
	assert.Equal(t, models.ErrNotFound, re.Kind)
}

func TestPrepare_MissingRequiredInputMakesNoCall(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK, `{"response":"x","done":true}`)
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL},
		secrets.MapStore{"WEATHER_API_KEY": "sk-live"}, weatherAgent)

	_, err := f.exec.Prepare(context.Background(), models.RunRequest{
		AgentID: "weather",
		Inputs:  map[string]string{"city": "   "},
	})
	require.Error(t, err)
	re := models.AsRunError(err)
	assert.Equal(t, models.ErrInvalidInput, re.Kind)
	assert.Contains(t, re.Detail, "city")

	assert.Zero(t, stub.hits.Load())
	list, _ := f.store.ListExecutions(context.Background(), models.ExecutionFilter{})
	assert.Empty(t, list, "rejections are not audited")
}

func TestStream_LocalInjectsSecretAndRedactsAudit(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK,
		`{"response":"Sun","done":false}`,
		`{"response":"ny","done":false}`,
		`{"done":true}`)
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL},
		secrets.MapStore{"WEATHER_API_KEY": "sk-live"}, weatherAgent)
	ctx := context.Background()

	plan, err := f.exec.Prepare(ctx, models.RunRequest{
		AgentID:     "weather",
		Instruction: "Forecast",
		Inputs:      map[string]string{"city": "Lyon", "api_key": "caller-value"},
	})
	require.NoError(t, err)
	assert.Equal(t, executor.PathLocalStream, plan.Path)
	assert.Equal(t, executor.DefaultLocalModel, plan.Model)

	var events []models.StreamEvent
	res := f.exec.Stream(ctx, plan, collect(&events))

	require.Len(t, events, 3)
	assert.Equal(t, models.EventDone, res.Final.Kind)
	assert.Equal(t, "Sunny", res.Final.FullText)

	got := <-stub.prompts
	assert.Contains(t, got, "mistral|You report weather.")
	assert.Contains(t, got, "sk-live")
	assert.NotContains(t, got, "caller-value")

	rec := onlyExecution(t, f.store)
	assert.Equal(t, res.ExecutionID, rec.ID)
	assert.Equal(t, models.ExecutionSuccess, rec.Status)
	assert.Equal(t, "Sunny", rec.OutputFullText)
	assert.Equal(t, models.RedactedValue, rec.InputsRedacted["api_key"])
	assert.Equal(t, "Lyon", rec.InputsRedacted["city"])
	assert.NotContains(t, rec.InputPreview, "sk-live")
	assert.Equal(t, "ollama", rec.Provider)
}

func TestStream_MissingSecretIsConfigurationError(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK, `{"done":true}`)
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL}, secrets.MapStore{}, weatherAgent)
	ctx := context.Background()

	plan, err := f.exec.Prepare(ctx, models.RunRequest{
		AgentID: "weather",
		Inputs:  map[string]string{"city": "Lyon"},
	})
	require.NoError(t, err)
	assert.Equal(t, executor.PathConfigError, plan.Path)

	var events []models.StreamEvent
	res := f.exec.Stream(ctx, plan, collect(&events))

	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Kind)
	assert.Equal(t, models.ErrMissingConfiguration, res.Final.Err.Kind)
	assert.Zero(t, stub.hits.Load())

	rec := onlyExecution(t, f.store)
	assert.Equal(t, models.ExecutionError, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "WEATHER_API_KEY")
}

func TestStream_ModelNotFoundIsAudited(t *testing.T) {
	stub := newGenerateStub(t, http.StatusNotFound, `{"error":"model 'llama9' not found"}`)
	agent := models.AgentSpec{ID: "a", Name: "A", Model: "llama9"}
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL}, secrets.MapStore{}, agent)
	ctx := context.Background()

	plan, err := f.exec.Prepare(ctx, models.RunRequest{AgentID: "a", Instruction: "hi"})
	require.NoError(t, err)

	var events []models.StreamEvent
	res := f.exec.Stream(ctx, plan, collect(&events))

	require.Len(t, events, 1)
	assert.Equal(t, models.ErrModelNotFound, res.Final.Err.Kind)
	assert.Equal(t, "llama9", res.Final.Err.Model)

	rec := onlyExecution(t, f.store)
	assert.Equal(t, "model_not_found", rec.ErrorMessage)
	assert.Equal(t, "llama9", rec.Model)
}

func TestRun_RemoteWithPostProcessor(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"raw answer"}}]}`)
	}))
	t.Cleanup(chat.Close)

	var hookReq postproc.Request
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&hookReq)
		_, _ = io.WriteString(w, `{"result":"polished"}`)
	}))
	t.Cleanup(hook.Close)

	agent := models.AgentSpec{
		ID:                    "remote",
		Name:                  "Remote",
		Model:                 "gpt-x",
		Provider:              models.ProviderOpenAICompatible,
		ProviderSource:        router.SourceCustom,
		PostProcessorEndpoint: hook.URL,
		OutputMode:            models.OutputStructured,
	}
	f := newFixture(t, router.ProviderConfig{CustomEndpoint: chat.URL}, secrets.MapStore{}, agent)
	ctx := context.Background()

	plan, err := f.exec.Prepare(ctx, models.RunRequest{AgentID: "remote", Instruction: "go"})
	require.NoError(t, err)
	assert.Equal(t, executor.PathRemoteSynth, plan.Path)

	res := f.exec.Run(ctx, plan)
	require.Equal(t, models.EventDone, res.Final.Kind)
	assert.Equal(t, "raw answer", res.Final.FullText)
	assert.Equal(t, "polished", res.Final.PostProcessedText)
	assert.Equal(t, models.OutputStructured, res.Final.OutputMode)
	assert.Equal(t, "raw answer", hookReq.GeneratedText)

	rec := onlyExecution(t, f.store)
	assert.Equal(t, "polished", rec.OutputFullText)
	assert.Equal(t, models.OutputStructured, rec.OutputMode)
}

func TestStream_CancelledCallerStillAudited(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK, `{"response":"partial","done":false}`, `{"done":true}`)
	agent := models.AgentSpec{ID: "a", Name: "A", Model: "m"}
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL}, secrets.MapStore{}, agent)

	ctx, cancel := context.WithCancel(context.Background())
	plan, err := f.exec.Prepare(ctx, models.RunRequest{AgentID: "a"})
	require.NoError(t, err)

	res := f.exec.Stream(ctx, plan, func(models.StreamEvent) error {
		cancel()
		return context.Canceled
	})
	assert.True(t, res.Cancelled)

	rec := onlyExecution(t, f.store)
	assert.Equal(t, models.ExecutionError, rec.Status)
}

func TestStream_CancelAfterDeltaIsAuditedWithPartialText(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK, `{"response":"partial","done":false}`, `{"done":true}`)
	agent := models.AgentSpec{ID: "a", Name: "A", Model: "m"}
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL}, secrets.MapStore{}, agent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	plan, err := f.exec.Prepare(ctx, models.RunRequest{AgentID: "a"})
	require.NoError(t, err)

	var events []models.StreamEvent
	res := f.exec.Stream(ctx, plan, func(ev models.StreamEvent) error {
		events = append(events, ev)
		cancel()
		return nil
	})

	require.Len(t, events, 1, "no events after the caller left")
	assert.Equal(t, models.EventDelta, events[0].Kind)
	assert.True(t, res.Cancelled)
	assert.Equal(t, models.EventError, res.Final.Kind)

	rec := onlyExecution(t, f.store)
	assert.Equal(t, models.ExecutionError, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "client disconnected")
	assert.Equal(t, "partial", rec.OutputFullText)
	assert.Equal(t, "partial", rec.OutputPreview)
}

func TestStream_EmptyStreamIsAuditedAsStreamingFailed(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK)
	agent := models.AgentSpec{ID: "a", Name: "A", Model: "m"}
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL}, secrets.MapStore{}, agent)
	ctx := context.Background()

	plan, err := f.exec.Prepare(ctx, models.RunRequest{AgentID: "a"})
	require.NoError(t, err)

	var events []models.StreamEvent
	res := f.exec.Stream(ctx, plan, collect(&events))

	require.Len(t, events, 1)
	assert.Equal(t, models.ErrStreamingFailed, res.Final.Err.Kind)

	rec := onlyExecution(t, f.store)
	assert.Equal(t, models.ExecutionError, rec.Status)
	assert.Equal(t, models.StreamingFailedMessage, rec.ErrorMessage)
	assert.Empty(t, rec.OutputFullText)
}

func TestStream_UnreachablePostProcessorKeepsPrimaryText(t *testing.T) {
	stub := newGenerateStub(t, http.StatusOK, `{"response":"Hi","done":false}`, `{"done":true}`)

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	agent := models.AgentSpec{ID: "a", Name: "A", Model: "m", PostProcessorEndpoint: deadURL}
	f := newFixture(t, router.ProviderConfig{OllamaURL: stub.srv.URL}, secrets.MapStore{}, agent)
	ctx := context.Background()

	plan, err := f.exec.Prepare(ctx, models.RunRequest{AgentID: "a"})
	require.NoError(t, err)

	var events []models.StreamEvent
	res := f.exec.Stream(ctx, plan, collect(&events))

	require.Equal(t, models.EventDone, res.Final.Kind)
	assert.Equal(t, "Hi", res.Final.FullText)
	assert.Empty(t, res.Final.PostProcessedText)

	rec := onlyExecution(t, f.store)
	assert.Equal(t, models.ExecutionSuccess, rec.Status)
	assert.Equal(t, "Hi", rec.OutputFullText)
	assert.Empty(t, rec.ErrorMessage)
}
