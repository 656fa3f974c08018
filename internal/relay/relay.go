// Package relay converts a provider's output into the caller-facing event
// stream.
//
// For the local model server the relay reads the /api/generate NDJSON stream
// and forwards each increment as it arrives. Providers without an increment
// protocol are called once through the router's Invoker and their result is
// synthesized as exactly one Delta followed by Done. In both cases the
// optional post-processor runs after the primary output is complete.
//
// State machine per run:
//
//	Connecting → Streaming → Finalizing → Terminal(Done | Error)
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/agentoven/aigateway/internal/postproc"
	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aigateway/relay")

// State is a relay state.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateFinalizing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Emitter delivers one event to the caller. A non-nil error means the caller
// is gone and no further events are attempted.
type Emitter func(models.StreamEvent) error

// Run is the input of one relay run.
type Run struct {
	Call        router.Call
	AgentID     string
	Instruction string
	// Inputs are the dispatch inputs, env values included. They are sent to
	// the post-processor and never logged.
	Inputs        map[string]string
	PostProcessor string
	OutputMode    models.OutputMode
}

// Outcome is the terminal result of a run.
type Outcome struct {
	Final models.StreamEvent // EventDone or EventError
	State State
	// Cancelled is set when the caller went away before the run reached Done.
	Cancelled bool
	// Partial is the text accumulated before an error or a disconnect.
	Partial string
}

// Relay drives runs. It holds no per-run state.
type Relay struct {
	client  *http.Client
	invoker *router.Invoker
	hook    *postproc.Hook
}

// New creates a relay. The stream client must not carry a whole-request
// timeout; the run's context bounds it.
func New(invoker *router.Invoker, hook *postproc.Hook) *Relay {
	return NewWithClient(&http.Client{}, invoker, hook)
}

// NewWithClient creates a relay with a caller-supplied stream client.
func NewWithClient(c *http.Client, invoker *router.Invoker, hook *postproc.Hook) *Relay {
	return &Relay{client: c, invoker: invoker, hook: hook}
}

// Stream runs one request, emitting events as they become available. It
// always returns the terminal outcome, including when the caller disconnects.
func (rl *Relay) Stream(ctx context.Context, run Run, emit Emitter) Outcome {
	ctx, span := tracer.Start(ctx, "relay.stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("aigateway.agent_id", run.AgentID),
		attribute.String("aigateway.provider", string(run.Call.Target.Provider)),
		attribute.Bool("aigateway.local", run.Call.Target.Local()),
	)

	var out Outcome
	if run.Call.Target.Local() {
		out = rl.streamLocal(ctx, run, emit)
	} else {
		out = rl.streamRemote(ctx, run, emit)
	}

	if out.Final.Kind == models.EventError {
		span.SetStatus(codes.Error, out.Final.Err.Error())
	}
	span.SetAttributes(attribute.String("aigateway.relay.state", out.State.String()))
	return out
}

// Collect runs one request without incremental output. Every provider,
// including the local model server, goes through the Invoker.
func (rl *Relay) Collect(ctx context.Context, run Run) Outcome {
	text, err := rl.invoker.Invoke(ctx, run.Call)
	if err != nil {
		return failed(models.AsRunError(err))
	}
	return Outcome{Final: rl.finalize(ctx, run, text), State: StateDone}
}

// ── Local streaming ─────────────────────────────────────────

func (rl *Relay) streamLocal(ctx context.Context, run Run, emit Emitter) Outcome {
	state := StateConnecting

	body, err := router.GenerateBody(run.Call, true)
	if err != nil {
		return rl.fail(emit, models.NewRunError(models.ErrTransport, "encode request: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, run.Call.Target.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return rl.fail(emit, models.NewRunError(models.ErrTransport, "create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rl.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(state, ctx.Err())
		}
		return rl.fail(emit, models.NewRunError(models.ErrTransport, "ollama: request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return rl.fail(emit, &models.RunError{Kind: models.ErrModelNotFound, Detail: "model not found", Model: run.Call.Model})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rl.fail(emit, models.NewRunError(models.ErrTransport, "ollama: status %d: %s", resp.StatusCode, snippet))
	}

	state = StateStreaming
	var (
		acc    bytes.Buffer
		sawEnd bool
		lines  = NewLineReader(resp.Body)
	)
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(state, err).withPartial(acc.String())
		}
		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(state, ctx.Err()).withPartial(acc.String())
			}
			return rl.fail(emit, models.NewRunError(models.ErrTransport, "ollama: read stream: %v", err)).withPartial(acc.String())
		}

		var chunk generateChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			log.Warn().Str("model", run.Call.Model).Str("error", chunk.Error).Msg("Model server reported an error mid-stream")
		}
		if chunk.Response != "" {
			acc.WriteString(chunk.Response)
			if err := emit(models.DeltaEvent(chunk.Response)); err != nil {
				return cancelled(state, err).withPartial(acc.String())
			}
		}
		if chunk.Done {
			sawEnd = true
		}
	}

	if acc.Len() == 0 && !sawEnd {
		return rl.fail(emit, &models.RunError{Kind: models.ErrStreamingFailed})
	}
	if err := ctx.Err(); err != nil {
		return cancelled(state, err).withPartial(acc.String())
	}

	return rl.complete(ctx, run, acc.String(), emit)
}

// ── Remote (synthesized) ────────────────────────────────────

func (rl *Relay) streamRemote(ctx context.Context, run Run, emit Emitter) Outcome {
	text, err := rl.invoker.Invoke(ctx, run.Call)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(StateConnecting, ctx.Err())
		}
		return rl.fail(emit, models.AsRunError(err))
	}
	if err := ctx.Err(); err != nil {
		return cancelled(StateStreaming, err).withPartial(text)
	}
	if err := emit(models.DeltaEvent(text)); err != nil {
		return cancelled(StateStreaming, err).withPartial(text)
	}
	if err := ctx.Err(); err != nil {
		return cancelled(StateStreaming, err).withPartial(text)
	}
	return rl.complete(ctx, run, text, emit)
}

// ── Finalization ────────────────────────────────────────────

// complete finalizes and emits Done. Once the primary output is complete the
// run counts as done even if the caller can no longer receive the event.
func (rl *Relay) complete(ctx context.Context, run Run, fullText string, emit Emitter) Outcome {
	done := rl.finalize(ctx, run, fullText)
	if err := emit(done); err != nil {
		log.Debug().Str("agent_id", run.AgentID).Err(err).Msg("Caller left before Done was delivered")
	}
	return Outcome{Final: done, State: StateDone}
}

func (rl *Relay) finalize(ctx context.Context, run Run, fullText string) models.StreamEvent {
	done := models.StreamEvent{
		Kind:       models.EventDone,
		FullText:   fullText,
		OutputMode: run.OutputMode,
	}
	if run.PostProcessor == "" || rl.hook == nil {
		return done
	}
	res, err := rl.hook.Call(ctx, run.PostProcessor, postproc.Request{
		AgentID:       run.AgentID,
		Instruction:   run.Instruction,
		Inputs:        run.Inputs,
		GeneratedText: fullText,
	})
	if err != nil {
		return done
	}
	done.PostProcessedText = res.Text
	done.Meta = res.Meta
	return done
}

func (rl *Relay) fail(emit Emitter, err *models.RunError) Outcome {
	ev := models.ErrorEvent(err)
	if emitErr := emit(ev); emitErr != nil {
		log.Debug().Err(emitErr).Msg("Caller left before error was delivered")
	}
	return Outcome{Final: ev, State: StateError}
}

func failed(err *models.RunError) Outcome {
	return Outcome{Final: models.ErrorEvent(err), State: StateError}
}

func cancelled(at State, cause error) Outcome {
	err := models.NewRunError(models.ErrTransport, "client disconnected during %s: %v", at, cause)
	return Outcome{Final: models.ErrorEvent(err), State: StateError, Cancelled: true}
}

func (o Outcome) withPartial(text string) Outcome {
	o.Partial = text
	return o
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	if o.Final.Kind == models.EventError {
		return fmt.Sprintf("%s (%s)", o.State, o.Final.Err.Kind)
	}
	return o.State.String()
}
