// Package router implements the AI gateway's provider layer.
//
// The Registry resolves a provider identifier to a CallTarget (calling
// convention, base URL, credential). The Invoker sends one synchronous
// generation request to a CallTarget and returns the full text or a typed
// *models.RunError. Each convention has its own request/response shape; the
// convention is selected once per call.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// InvokeTimeout bounds a single non-streaming provider call.
const InvokeTimeout = 120 * time.Second

// DefaultAnthropicMaxTokens is sent when no num_predict is resolved.
const DefaultAnthropicMaxTokens = 1024

var tracer = otel.Tracer("aigateway/router")

// Call is one fully prepared provider request.
type Call struct {
	Target  CallTarget
	Model   string
	Prompt  string
	Options models.SamplingOptions
}

// Invoker performs non-streaming provider calls.
type Invoker struct {
	client *http.Client
}

// NewInvoker creates an invoker with the default two-minute timeout.
func NewInvoker() *Invoker {
	return NewInvokerWithClient(&http.Client{Timeout: InvokeTimeout})
}

// NewInvokerWithClient creates an invoker around a caller-supplied client.
func NewInvokerWithClient(c *http.Client) *Invoker {
	return &Invoker{client: c}
}

// Invoke sends call and returns the generated text. Errors are always
// *models.RunError.
func (inv *Invoker) Invoke(ctx context.Context, call Call) (string, error) {
	ctx, span := tracer.Start(ctx, "provider.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("aigateway.provider", string(call.Target.Provider)),
		attribute.String("aigateway.convention", call.Target.Convention.String()),
		attribute.String("aigateway.model", call.Model),
	)

	start := time.Now()
	var (
		text string
		err  error
	)
	switch call.Target.Convention {
	case ConventionGenerate:
		text, err = inv.callGenerate(ctx, call)
	case ConventionChat:
		text, err = inv.callChat(ctx, call)
	case ConventionAnthropic:
		text, err = inv.callAnthropic(ctx, call)
	case ConventionAzure:
		text, err = inv.callAzure(ctx, call)
	default:
		err = models.NewRunError(models.ErrMissingConfiguration, "no calling convention for provider %q", call.Target.Provider)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().
			Str("provider", string(call.Target.Provider)).
			Str("model", call.Model).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Provider call failed")
		return "", err
	}
	return text, nil
}

// ── Local model server (generate) ───────────────────────────

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options models.SamplingOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// GenerateBody encodes an /api/generate request.
func GenerateBody(call Call, stream bool) ([]byte, error) {
	return json.Marshal(generateRequest{
		Model:   call.Model,
		Prompt:  call.Prompt,
		Stream:  stream,
		Options: call.Options,
	})
}

func (inv *Invoker) callGenerate(ctx context.Context, call Call) (string, error) {
	body, err := GenerateBody(call, false)
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "ollama: encode request: %v", err)
	}

	raw, status, err := inv.post(ctx, call.Target.BaseURL+"/api/generate", body, nil)
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "ollama: request failed: %v", err)
	}
	if status == http.StatusNotFound {
		return "", &models.RunError{Kind: models.ErrModelNotFound, Detail: "model not found", Model: call.Model}
	}
	if status < 200 || status > 299 {
		return "", models.NewRunError(models.ErrTransport, "ollama: status %d: %s", status, truncate(raw))
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Response == nil {
		return "", models.NewRunError(models.ErrInvalidResponse, "ollama: missing response field")
	}
	return *resp.Response, nil
}

// ── Chat completions (OpenAI family, generic compatible) ────

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func newChatRequest(model, prompt string, opts models.SamplingOptions) chatRequest {
	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if v, ok := opts.Float(models.OptTemperature); ok {
		req.Temperature = &v
	}
	if v, ok := opts.Float(models.OptTopP); ok {
		req.TopP = &v
	}
	if v, ok := opts.Int(models.OptNumPredict); ok {
		req.MaxTokens = &v
	}
	return req
}

func (inv *Invoker) callChat(ctx context.Context, call Call) (string, error) {
	name := string(call.Target.Provider)
	body, err := json.Marshal(newChatRequest(call.Model, call.Prompt, call.Options))
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "%s: encode request: %v", name, err)
	}

	headers := map[string]string{}
	if call.Target.APIKey != "" {
		headers["Authorization"] = "Bearer " + call.Target.APIKey
	}

	raw, status, err := inv.post(ctx, call.Target.BaseURL+"/chat/completions", body, headers)
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "%s: request failed: %v", name, err)
	}
	return decodeChat(name, raw, status)
}

func decodeChat(name string, raw []byte, status int) (string, error) {
	if status < 200 || status > 299 {
		return "", models.NewRunError(models.ErrTransport, "%s: status %d: %s", name, status, truncate(raw))
	}
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", models.NewRunError(models.ErrInvalidResponse, "%s: decode response: %v", name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", models.NewRunError(models.ErrInvalidResponse, "%s: missing choices[0].message.content", name)
	}
	return *resp.Choices[0].Message.Content, nil
}

// ── Azure OpenAI ────────────────────────────────────────────

func (inv *Invoker) callAzure(ctx context.Context, call Call) (string, error) {
	body, err := json.Marshal(newChatRequest("", call.Prompt, call.Options))
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "azure: encode request: %v", err)
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		call.Target.BaseURL, url.PathEscape(call.Target.Deployment), AzureAPIVersion)

	raw, status, err := inv.post(ctx, endpoint, body, map[string]string{"api-key": call.Target.APIKey})
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "azure: request failed: %v", err)
	}
	return decodeChat("azure", raw, status)
}

// ── Anthropic ───────────────────────────────────────────────

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
}

func (inv *Invoker) callAnthropic(ctx context.Context, call Call) (string, error) {
	req := anthropicRequest{
		Model:     call.Model,
		MaxTokens: DefaultAnthropicMaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: call.Prompt}},
	}
	if v, ok := call.Options.Int(models.OptNumPredict); ok {
		req.MaxTokens = v
	}
	if v, ok := call.Options.Float(models.OptTemperature); ok {
		req.Temperature = &v
	}
	if v, ok := call.Options.Float(models.OptTopP); ok {
		req.TopP = &v
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "anthropic: encode request: %v", err)
	}

	raw, status, err := inv.post(ctx, call.Target.BaseURL+"/v1/messages", body, map[string]string{
		"x-api-key":         call.Target.APIKey,
		"anthropic-version": AnthropicAPIVersion,
	})
	if err != nil {
		return "", models.NewRunError(models.ErrTransport, "anthropic: request failed: %v", err)
	}
	if status < 200 || status > 299 {
		return "", models.NewRunError(models.ErrTransport, "anthropic: status %d: %s", status, truncate(raw))
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", models.NewRunError(models.ErrInvalidResponse, "anthropic: decode response: %v", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return "", models.NewRunError(models.ErrInvalidResponse, "anthropic: missing content[0].text")
	}
	return *resp.Content[0].Text, nil
}

// ── HTTP helpers ────────────────────────────────────────────

func (inv *Invoker) post(ctx context.Context, endpoint string, body []byte, headers map[string]string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := inv.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("timed out: %w", err)
		}
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return raw, httpResp.StatusCode, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
