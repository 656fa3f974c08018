// Package executions records one audit entry per run and purges entries past
// the retention window.
//
// Env-sourced input values are replaced with models.RedactedValue before a
// record is built; the real values only ever travel on the live call.
package executions

import (
	"context"
	"fmt"
	"time"

	"github.com/agentoven/aigateway/internal/router"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultRetentionDays applies when the configured retention is not positive.
const DefaultRetentionDays = 30

// Entry is the outcome of one run as seen by the logger.
type Entry struct {
	Agent    *models.AgentSpec
	Provider string
	Model    string
	Inputs   map[string]string // dispatch inputs, env values included
	Duration time.Duration

	// With Err set, FullText holds whatever partial output was produced.
	Err               *models.RunError
	FullText          string
	PostProcessedText string
}

// Logger writes execution records.
type Logger struct {
	store store.ExecutionStore
	now   func() time.Time
}

// NewLogger creates a logger writing to s.
func NewLogger(s store.ExecutionStore) *Logger {
	return &Logger{store: s, now: time.Now}
}

// Now returns the logger's current time.
func (l *Logger) Now() time.Time { return l.now() }

// WithClock replaces the logger's time source.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Record builds and stores the audit record for e and returns its id.
func (l *Logger) Record(ctx context.Context, e Entry) (string, error) {
	rec := l.Build(e)
	if err := l.store.CreateExecution(ctx, rec); err != nil {
		return "", fmt.Errorf("record execution: %w", err)
	}
	return rec.ID, nil
}

// Build renders e as an ExecutionRecord without storing it.
func (l *Logger) Build(e Entry) *models.ExecutionRecord {
	redacted := Redact(e.Agent.InputSchema, e.Inputs)

	rec := &models.ExecutionRecord{
		ID:             uuid.New().String(),
		AgentID:        e.Agent.ID,
		AgentName:      e.Agent.Name,
		Provider:       e.Provider,
		Model:          e.Model,
		DurationMs:     e.Duration.Milliseconds(),
		InputsRedacted: redacted,
		OutputMode:     e.Agent.EffectiveOutputMode(),
		CreatedAt:      l.now().UTC(),
	}
	if len(redacted) > 0 {
		rec.InputPreview = Preview(router.PrettyJSON(redacted))
	}

	if e.Err != nil {
		rec.Status = models.ExecutionError
		rec.ErrorMessage = e.Err.AuditMessage()
		rec.OutputFullText = e.FullText
		rec.OutputPreview = Preview(e.FullText)
		return rec
	}

	rec.Status = models.ExecutionSuccess
	rec.OutputFullText = e.FullText
	if e.PostProcessedText != "" {
		rec.OutputFullText = e.PostProcessedText
	}
	rec.OutputPreview = Preview(rec.OutputFullText)
	return rec
}

// Sweep deletes every record older than now minus days. A non-positive days
// uses DefaultRetentionDays. Calling it again deletes nothing new.
func (l *Logger) Sweep(ctx context.Context, days int) (int64, error) {
	return l.SweepBefore(ctx, Cutoff(l.now(), days))
}

// SweepBefore deletes every record created before cutoff.
func (l *Logger) SweepBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := l.store.DeleteExecutionsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep executions: %w", err)
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Expired executions purged")
	}
	return n, nil
}

// RetentionDays normalizes a configured retention window.
func RetentionDays(days int) int {
	if days <= 0 {
		return DefaultRetentionDays
	}
	return days
}

// Cutoff returns the instant before which records are expired.
func Cutoff(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -RetentionDays(days))
}

// Redact copies inputs, replacing the value of every env-marked field that is
// present with models.RedactedValue.
func Redact(schema []models.InputField, inputs map[string]string) map[string]string {
	out := make(map[string]string, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	for _, f := range schema {
		if !f.IsEnv() || f.Key == "" {
			continue
		}
		if _, ok := out[f.Key]; ok {
			out[f.Key] = models.RedactedValue
		}
	}
	return out
}
