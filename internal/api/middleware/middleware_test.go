package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/aigateway/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogger_PassesFlushThrough(t *testing.T) {
	var flushed bool
	handler := middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Flusher")
		}
		w.Write([]byte("data: {}\n\n"))
		f.Flush()
		flushed = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ai/v1/run/stream", nil))

	if !flushed {
		t.Fatal("handler did not run")
	}
	if !rec.Flushed {
		t.Error("Flush was not forwarded to the underlying writer")
	}
}

func TestLogger_KeepsStatus(t *testing.T) {
	handler := middleware.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestTelemetry_PassesFlushThrough(t *testing.T) {
	handler := middleware.Telemetry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer does not implement http.Flusher")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTelemetry_NamesSpansByRoutePattern(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(middleware.Telemetry)
	r.Get("/ai/v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Execution-Id", chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/ai/v1/run", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	for _, id := range []string{"a1", "b2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ai/v1/executions/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ai/v1/run", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	spans := sr.Ended()
	if len(spans) != 4 {
		t.Fatalf("spans = %d, want 4", len(spans))
	}
	for i, want := range []string{
		"GET /ai/v1/executions/{id}",
		"GET /ai/v1/executions/{id}",
		"POST /ai/v1/run",
		"GET unmatched",
	} {
		if got := spans[i].Name(); got != want {
			t.Errorf("span[%d] name = %q, want %q", i, got, want)
		}
	}

	if got := spanAttr(spans[1], "aigateway.execution_id"); got != "b2" {
		t.Errorf("execution_id = %q, want b2", got)
	}
	if spans[2].Status().Code != codes.Error {
		t.Errorf("5xx span status = %v, want Error", spans[2].Status().Code)
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("2xx span marked as error")
	}
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}
