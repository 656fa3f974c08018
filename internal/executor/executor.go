// Package executor orchestrates a single agent run.
//
// Every request is first turned into a Plan before any I/O happens:
//
//	load agent → validate required inputs → inject env secrets →
//	resolve sampling options → resolve call target → pick a path
//
// A Plan takes exactly one of three paths: local streaming (the model server's
// NDJSON protocol), remote synthesized (one invoker call wrapped as Delta+Done)
// or configuration error. Executing a plan drives the relay and writes exactly
// one execution record.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agentoven/aigateway/internal/executions"
	"github.com/agentoven/aigateway/internal/options"
	"github.com/agentoven/aigateway/internal/relay"
	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/internal/secrets"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultLocalModel is used when an agent on the local model server names no
// model.
const DefaultLocalModel = "mistral"

// Path is the dispatch path chosen for a run.
type Path int

const (
	PathLocalStream Path = iota
	PathRemoteSynth
	PathConfigError
)

func (p Path) String() string {
	switch p {
	case PathLocalStream:
		return "local-stream"
	case PathRemoteSynth:
		return "remote-synth"
	case PathConfigError:
		return "config-error"
	}
	return "unknown"
}

// Plan is a fully resolved run. It is built without network access.
type Plan struct {
	Path     Path
	Agent    *models.AgentSpec
	Provider models.ProviderKind
	Model    string
	Run      relay.Run

	// ConfigErr is set for PathConfigError.
	ConfigErr *models.RunError
}

// Result is the terminal outcome of an executed plan.
type Result struct {
	Final       models.StreamEvent
	ExecutionID string
	Cancelled   bool
}

// Executor prepares and runs agent requests.
type Executor struct {
	agents   store.AgentStore
	registry *router.Registry
	options  *options.Resolver
	secrets  secrets.Store
	relay    *relay.Relay
	logger   *executions.Logger
	now      func() time.Time
}

// NewExecutor wires an executor from its collaborators.
func NewExecutor(
	agents store.AgentStore,
	registry *router.Registry,
	opts *options.Resolver,
	sec secrets.Store,
	rl *relay.Relay,
	logger *executions.Logger,
) *Executor {
	return &Executor{
		agents:   agents,
		registry: registry,
		options:  opts,
		secrets:  sec,
		relay:    rl,
		logger:   logger,
		now:      time.Now,
	}
}

// Prepare validates req and resolves everything the run needs. A missing
// agent or a missing required input is returned as a *models.RunError
// rejection; nothing is recorded for it. Configuration gaps are not
// rejections: they produce a PathConfigError plan that is reported and
// recorded like any other failed run.
func (e *Executor) Prepare(ctx context.Context, req models.RunRequest) (*Plan, error) {
	agent, err := e.agents.GetAgent(ctx, req.AgentID)
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			return nil, models.NewRunError(models.ErrNotFound, "agent %q not found", req.AgentID)
		}
		return nil, err
	}

	if missing := missingRequired(agent.InputSchema, req.Inputs); len(missing) > 0 {
		return nil, models.NewRunError(models.ErrInvalidInput, "missing required inputs: %s", strings.Join(missing, ", "))
	}

	plan := &Plan{
		Agent:    agent,
		Provider: e.registry.ProviderFor(agent),
		Model:    agent.Model,
	}

	inputs, cfgErr := e.injectSecrets(agent.InputSchema, req.Inputs)

	target, err := e.registry.Resolve(plan.Provider, e.registry.SourceFor(agent), agent.Model)
	if cfgErr == nil && err != nil {
		cfgErr = models.AsRunError(err)
	}
	if target.Local() && plan.Model == "" {
		plan.Model = DefaultLocalModel
	}

	plan.Run = relay.Run{
		Call: router.Call{
			Target:  target,
			Model:   plan.Model,
			Prompt:  router.BuildPrompt(agent.SystemPrompt, req.Instruction, inputs),
			Options: e.options.Resolve(agent.PresetID),
		},
		AgentID:       agent.ID,
		Instruction:   req.Instruction,
		Inputs:        inputs,
		PostProcessor: strings.TrimSpace(agent.PostProcessorEndpoint),
		OutputMode:    agent.EffectiveOutputMode(),
	}

	switch {
	case cfgErr != nil:
		plan.Path = PathConfigError
		plan.ConfigErr = cfgErr
	case target.Local():
		plan.Path = PathLocalStream
	default:
		plan.Path = PathRemoteSynth
	}
	return plan, nil
}

// Stream executes plan, emitting events as they are produced, and records the
// outcome.
func (e *Executor) Stream(ctx context.Context, plan *Plan, emit relay.Emitter) Result {
	start := e.now()

	var out relay.Outcome
	if plan.Path == PathConfigError {
		ev := models.ErrorEvent(plan.ConfigErr)
		if err := emit(ev); err != nil {
			log.Debug().Err(err).Msg("Caller left before error was delivered")
		}
		out = relay.Outcome{Final: ev, State: relay.StateError}
	} else {
		out = e.relay.Stream(ctx, plan.Run, emit)
	}

	return e.finish(ctx, plan, out, start)
}

// Run executes plan without incremental output. Every provider, the local
// model server included, is called once through the invoker.
func (e *Executor) Run(ctx context.Context, plan *Plan) Result {
	start := e.now()

	var out relay.Outcome
	if plan.Path == PathConfigError {
		out = relay.Outcome{Final: models.ErrorEvent(plan.ConfigErr), State: relay.StateError}
	} else {
		out = e.relay.Collect(ctx, plan.Run)
	}

	return e.finish(ctx, plan, out, start)
}

func (e *Executor) finish(ctx context.Context, plan *Plan, out relay.Outcome, start time.Time) Result {
	duration := e.now().Sub(start)

	entry := executions.Entry{
		Agent:    plan.Agent,
		Provider: string(plan.Provider),
		Model:    plan.Model,
		Inputs:   plan.Run.Inputs,
		Duration: duration,
	}
	if out.Final.Kind == models.EventError {
		entry.Err = out.Final.Err
		entry.FullText = out.Partial
	} else {
		entry.FullText = out.Final.FullText
		entry.PostProcessedText = out.Final.PostProcessedText
	}

	// The caller may be gone; the audit write must still happen.
	id, err := e.logger.Record(context.WithoutCancel(ctx), entry)
	if err != nil {
		log.Error().Err(err).Str("agent_id", plan.Agent.ID).Msg("Failed to record execution")
	}

	event := log.Info()
	status := models.ExecutionSuccess
	if entry.Err != nil {
		status = models.ExecutionError
		event = log.Warn().Str("error_kind", string(entry.Err.Kind))
	}
	event.
		Str("agent_id", plan.Agent.ID).
		Str("provider", string(plan.Provider)).
		Str("model", plan.Model).
		Str("path", plan.Path.String()).
		Str("status", string(status)).
		Bool("cancelled", out.Cancelled).
		Dur("duration", duration).
		Msg("Run complete")

	return Result{Final: out.Final, ExecutionID: id, Cancelled: out.Cancelled}
}

// injectSecrets builds the dispatch inputs: caller values for ordinary
// fields, server secrets for env fields. Caller-supplied values for env
// fields are dropped. A required env field without a secret is a
// configuration error.
func (e *Executor) injectSecrets(schema []models.InputField, in map[string]string) (map[string]string, *models.RunError) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}

	var cfgErr *models.RunError
	for _, f := range schema {
		if !f.IsEnv() || f.Key == "" {
			continue
		}
		delete(out, f.Key)
		v, ok := e.secrets.Lookup(f.Env)
		if !ok {
			if f.Required && cfgErr == nil {
				cfgErr = models.NewRunError(models.ErrMissingConfiguration, "secret %s for input %q is not configured", f.Env, f.Key)
			}
			continue
		}
		out[f.Key] = v
	}
	return out, cfgErr
}

// missingRequired lists required caller-supplied fields that are absent or
// blank. Env fields are checked during secret injection instead.
func missingRequired(schema []models.InputField, in map[string]string) []string {
	var missing []string
	for _, f := range schema {
		if !f.Required || f.IsEnv() || f.Key == "" {
			continue
		}
		if strings.TrimSpace(in[f.Key]) == "" {
			missing = append(missing, f.Key)
		}
	}
	return missing
}
