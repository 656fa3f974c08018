package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	ErrMissingConfiguration ErrorKind = "missing_configuration"
	ErrTransport            ErrorKind = "transport"
	ErrInvalidResponse      ErrorKind = "invalid_response"
	ErrModelNotFound        ErrorKind = "model_not_found"
	ErrStreamingFailed      ErrorKind = "streaming_failed"

	// Request rejections. These never reach a provider and are never audited.
	ErrNotFound     ErrorKind = "not_found"
	ErrInvalidInput ErrorKind = "invalid_input"
)

// StreamingFailedMessage is the audit text for a stream that produced nothing.
const StreamingFailedMessage = "Streaming failed"

// RunError is the single typed error returned by every run-level operation.
type RunError struct {
	Kind   ErrorKind
	Detail string
	Model  string // set for ErrModelNotFound
}

func (e *RunError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// AuditMessage is the text stored as an execution record's errorMessage.
func (e *RunError) AuditMessage() string {
	switch e.Kind {
	case ErrModelNotFound:
		return string(ErrModelNotFound)
	case ErrStreamingFailed:
		return StreamingFailedMessage
	}
	if e.Detail == "" {
		return string(e.Kind)
	}
	return e.Detail
}

// Rejection reports whether the error rejects the request before dispatch.
func (e *RunError) Rejection() bool {
	return e.Kind == ErrNotFound || e.Kind == ErrInvalidInput
}

// NewRunError builds a RunError with a formatted detail.
func NewRunError(kind ErrorKind, format string, args ...any) *RunError {
	return &RunError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsRunError extracts a *RunError from err, wrapping anything else as a
// transport failure.
func AsRunError(err error) *RunError {
	if err == nil {
		return nil
	}
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return &RunError{Kind: ErrTransport, Detail: err.Error()}
}
