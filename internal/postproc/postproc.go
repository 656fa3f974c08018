// Package postproc calls an agent's post-processor endpoint with the
// completed generation and returns the text that supersedes it.
package postproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTimeout bounds one post-processor call.
const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("aigateway/postproc")

// Request is the body POSTed to the endpoint.
type Request struct {
	AgentID       string            `json:"agentId"`
	Instruction   string            `json:"instruction"`
	Inputs        map[string]string `json:"inputs"`
	GeneratedText string            `json:"generatedText"`
}

// Result is a successful post-processor response.
type Result struct {
	Text string
	Meta string
}

// Hook performs post-processor calls.
type Hook struct {
	client *http.Client
}

// New creates a hook whose calls time out after timeout. A non-positive
// timeout uses DefaultTimeout.
func New(timeout time.Duration) *Hook {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Hook{client: &http.Client{Timeout: timeout}}
}

// Call POSTs req to endpoint. On success the response's "result" field is the
// post-processed text; without one, the JSON body is re-encoded; a non-JSON
// body is used verbatim. Any transport failure or non-2xx status is returned
// as an error and the caller keeps the primary text.
func (h *Hook) Call(ctx context.Context, endpoint string, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "postproc.call")
	defer span.End()
	span.SetAttributes(attribute.String("aigateway.postproc.endpoint", endpoint))

	res, err := h.call(ctx, endpoint, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Str("agent_id", req.AgentID).Str("endpoint", endpoint).Err(err).
			Msg("Post-processor failed, keeping primary text")
		return Result{}, err
	}
	return res, nil
}

func (h *Hook) call(ctx context.Context, endpoint string, req Request) (Result, error) {
	if req.Inputs == nil {
		req.Inputs = map[string]string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Result{}, fmt.Errorf("status %d", httpResp.StatusCode)
	}

	return Result{Text: ExtractText(raw), Meta: "postprocessor: " + endpoint}, nil
}

// ExtractText turns a post-processor response body into text. Only JSON
// objects and arrays are treated as structured; anything else is returned
// verbatim. A null result counts as absent.
func ExtractText(raw []byte) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	switch body := v.(type) {
	case map[string]any:
		result, ok := body["result"]
		if !ok || result == nil {
			return reencode(body)
		}
		if r, ok := result.(string); ok {
			return r
		}
		return reencode(result)
	case []any:
		return reencode(body)
	}
	return string(raw)
}

func reencode(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
