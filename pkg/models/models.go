// Package models defines the data types shared by the AI gateway core:
// agents, sampling presets, run requests, stream events and execution records.
package models

import (
	"encoding/json"
	"time"
)

// ── Providers ────────────────────────────────────────────────

// ProviderKind identifies a text-generation backend.
type ProviderKind string

const (
	ProviderOllama           ProviderKind = "ollama"
	ProviderOpenAI           ProviderKind = "openai"
	ProviderGroq             ProviderKind = "groq"
	ProviderOpenRouter       ProviderKind = "openrouter"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderAzure            ProviderKind = "azure"
	ProviderOpenAICompatible ProviderKind = "openai_compatible"
)

// KnownProviders lists every provider in display order.
var KnownProviders = []ProviderKind{
	ProviderOllama,
	ProviderOpenAI,
	ProviderGroq,
	ProviderOpenRouter,
	ProviderAnthropic,
	ProviderAzure,
	ProviderOpenAICompatible,
}

// Valid reports whether p is one of the known providers.
func (p ProviderKind) Valid() bool {
	for _, k := range KnownProviders {
		if k == p {
			return true
		}
	}
	return false
}

// ── Agents ───────────────────────────────────────────────────

// OutputMode tells the caller how to render the generated text.
type OutputMode string

const (
	OutputText       OutputMode = "text"
	OutputStructured OutputMode = "structured"
)

// InputField declares one input an agent accepts.
type InputField struct {
	Key      string   `json:"key" yaml:"key"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`

	// Env names a server secret. When set, the value is injected server-side
	// and any caller-supplied value for Key is ignored.
	Env string `json:"env,omitempty" yaml:"env,omitempty"`
}

// IsEnv reports whether the field is populated from a server secret.
func (f InputField) IsEnv() bool { return f.Env != "" }

// AgentSpec is the read-only agent configuration consumed by the core.
type AgentSpec struct {
	ID                    string       `json:"id" yaml:"id"`
	Name                  string       `json:"name" yaml:"name"`
	Model                 string       `json:"model" yaml:"model"`
	SystemPrompt          string       `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	InputSchema           []InputField `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
	Provider              ProviderKind `json:"provider,omitempty" yaml:"provider,omitempty"`
	ProviderSource        string       `json:"providerSource,omitempty" yaml:"providerSource,omitempty"`
	PresetID              string       `json:"presetId,omitempty" yaml:"presetId,omitempty"`
	PostProcessorEndpoint string       `json:"postProcessorEndpoint,omitempty" yaml:"postProcessorEndpoint,omitempty"`
	OutputMode            OutputMode   `json:"outputMode,omitempty" yaml:"outputMode,omitempty"`
}

// EffectiveOutputMode returns the agent's output mode, defaulting to text.
func (a *AgentSpec) EffectiveOutputMode() OutputMode {
	if a.OutputMode == "" {
		return OutputText
	}
	return a.OutputMode
}

// ── Sampling ─────────────────────────────────────────────────

// SamplingOptions maps knob names to float64 or int values. Absent keys are
// never sent to a provider.
type SamplingOptions map[string]any

// The nine sampling knobs understood by the gateway.
const (
	OptTemperature   = "temperature"
	OptTopP          = "top_p"
	OptTopK          = "top_k"
	OptNumPredict    = "num_predict"
	OptNumCtx        = "num_ctx"
	OptNumGPU        = "num_gpu"
	OptNumThread     = "num_thread"
	OptRepeatPenalty = "repeat_penalty"
	OptSeed          = "seed"
)

// SamplingKnobs lists the known knobs in a stable order.
var SamplingKnobs = []string{
	OptNumPredict, OptNumCtx, OptNumGPU, OptNumThread,
	OptTemperature, OptTopP, OptTopK, OptRepeatPenalty, OptSeed,
}

// IsFloatKnob reports whether the knob carries a float value.
func IsFloatKnob(key string) bool {
	return key == OptTemperature || key == OptTopP || key == OptRepeatPenalty
}

// IsKnownKnob reports whether key is one of SamplingKnobs.
func IsKnownKnob(key string) bool {
	for _, k := range SamplingKnobs {
		if k == key {
			return true
		}
	}
	return false
}

// Float returns the knob as a float64.
func (o SamplingOptions) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int returns the knob as an int.
func (o SamplingOptions) Int(key string) (int, bool) {
	switch v := o[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Clone returns an independent copy.
func (o SamplingOptions) Clone() SamplingOptions {
	out := make(SamplingOptions, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Preset is a named bundle of sampling knobs.
type Preset struct {
	Label   string          `json:"label" yaml:"label"`
	Options SamplingOptions `json:"options" yaml:"options"`
}

// ── Runs ─────────────────────────────────────────────────────

// RunRequest is a caller's request to run an agent.
type RunRequest struct {
	AgentID     string            `json:"agentId"`
	Instruction string            `json:"instruction"`
	Inputs      map[string]string `json:"inputs,omitempty"`
}

// EventKind tags a StreamEvent.
type EventKind string

const (
	EventDelta EventKind = "delta"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)

// StreamEvent is one caller-facing event of a run.
type StreamEvent struct {
	Kind EventKind

	// EventDelta
	Delta string

	// EventDone
	FullText          string
	PostProcessedText string
	Meta              string
	OutputMode        OutputMode

	// EventError
	Err *RunError
}

// DeltaEvent builds an incremental text event.
func DeltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventDelta, Delta: text}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(err *RunError) StreamEvent {
	return StreamEvent{Kind: EventError, Err: err}
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// wireEvent is the JSON object written to callers.
type wireEvent struct {
	Delta             *string `json:"delta,omitempty"`
	Done              bool    `json:"done,omitempty"`
	Full              *string `json:"full,omitempty"`
	PostProcessedText *string `json:"postProcessedText,omitempty"`
	Meta              *string `json:"meta,omitempty"`
	OutputMode        string  `json:"outputMode,omitempty"`
	Error             string  `json:"error,omitempty"`
	ErrorKind         string  `json:"errorKind,omitempty"`
	Model             string  `json:"model,omitempty"`
	ModelNotFoundHint bool    `json:"modelNotFoundHint,omitempty"`
}

// MarshalJSON renders the caller wire shape: exactly one of delta, done or error.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	var w wireEvent
	switch e.Kind {
	case EventDelta:
		w.Delta = &e.Delta
	case EventDone:
		w.Done = true
		w.Full = &e.FullText
		w.PostProcessedText = &e.PostProcessedText
		w.Meta = &e.Meta
		w.OutputMode = string(e.OutputMode)
	case EventError:
		err := e.Err
		if err == nil {
			err = &RunError{Kind: ErrStreamingFailed}
		}
		w.Error = err.AuditMessage()
		w.ErrorKind = string(err.Kind)
		if err.Kind == ErrModelNotFound {
			w.Model = err.Model
			w.ModelNotFoundHint = true
		}
	}
	return json.Marshal(w)
}

// ── Execution records ────────────────────────────────────────

// ExecutionStatus is the outcome of a run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// RedactedValue replaces env-sourced input values in audit records.
const RedactedValue = "[env]"

// PreviewLimit is the maximum length, in characters, of a stored preview.
const PreviewLimit = 280

// ExecutionRecord is the immutable audit entry written once per run.
type ExecutionRecord struct {
	ID             string            `json:"id"`
	AgentID        string            `json:"agentId"`
	AgentName      string            `json:"agentName"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	Status         ExecutionStatus   `json:"status"`
	DurationMs     int64             `json:"durationMs"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	InputsRedacted map[string]string `json:"inputsRedacted"`
	InputPreview   string            `json:"inputPreview,omitempty"`
	OutputFullText string            `json:"outputFullText,omitempty"`
	OutputPreview  string            `json:"outputPreview"`
	OutputMode     OutputMode        `json:"outputMode"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// ExecutionSummary is the list-view projection of a record (no full payloads).
type ExecutionSummary struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agentId"`
	AgentName     string          `json:"agentName"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	Status        ExecutionStatus `json:"status"`
	DurationMs    int64           `json:"durationMs"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	InputPreview  string          `json:"inputPreview,omitempty"`
	OutputPreview string          `json:"outputPreview"`
	OutputMode    OutputMode      `json:"outputMode"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Summary projects the record for list views.
func (r *ExecutionRecord) Summary() ExecutionSummary {
	return ExecutionSummary{
		ID:            r.ID,
		AgentID:       r.AgentID,
		AgentName:     r.AgentName,
		Provider:      r.Provider,
		Model:         r.Model,
		Status:        r.Status,
		DurationMs:    r.DurationMs,
		ErrorMessage:  r.ErrorMessage,
		InputPreview:  r.InputPreview,
		OutputPreview: r.OutputPreview,
		OutputMode:    r.OutputMode,
		CreatedAt:     r.CreatedAt,
	}
}

// ExecutionFilter narrows an execution listing.
type ExecutionFilter struct {
	AgentID string
	Status  ExecutionStatus
	Limit   int // default 20
	Offset  int
}
