package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline errors for handling decisions.
type ErrorKind string

const (
	KindAgentExecution ErrorKind = "agent_execution" // Agent returned failure or panicked
	KindTimeout        ErrorKind = "timeout"         // Agent exceeded its time bound
	KindCheckpointIO   ErrorKind = "checkpoint_io"   // Checkpoint save/load failed
	KindCache          ErrorKind = "cache"           // Cache tier failure (always non-fatal)
	KindValidation     ErrorKind = "validation"      // State invariant violated at a phase boundary
	KindState          ErrorKind = "state"           // State machine misuse
	KindInternal       ErrorKind = "internal"        // Unexpected internal error
)

// PipelineError is the structured error used at every component boundary.
// Callers branch on Kind, never on message text.
type PipelineError struct {
	Kind      ErrorKind
	Code      string
	AgentID   string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]any
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.AgentID != "" {
		prefix = fmt.Sprintf("[%s] agent %s", e.Kind, e.AgentID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s (%v)", prefix, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", prefix, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on Kind and Code.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// WithCause wraps an underlying error.
func (e *PipelineError) WithCause(cause error) *PipelineError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *PipelineError) WithDetail(key string, value any) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// ErrAgentExecution creates an agent execution error.
func ErrAgentExecution(agentID, message string) *PipelineError {
	return &PipelineError{
		Kind:      KindAgentExecution,
		Code:      CodeAgentFailed,
		AgentID:   agentID,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error for an agent.
func ErrTimeout(agentID string, message string) *PipelineError {
	return &PipelineError{
		Kind:      KindTimeout,
		Code:      "TIMEOUT",
		AgentID:   agentID,
		Message:   message,
		Retryable: true,
	}
}

// ErrCheckpointIO creates a checkpoint I/O error. Always fatal: silent
// checkpoint loss is never acceptable.
func ErrCheckpointIO(code, message string) *PipelineError {
	return &PipelineError{
		Kind:    KindCheckpointIO,
		Code:    code,
		Message: message,
	}
}

// ErrCache creates a cache error. Callers treat it as a miss.
func ErrCache(message string) *PipelineError {
	return &PipelineError{
		Kind:      KindCache,
		Code:      "CACHE_UNAVAILABLE",
		Message:   message,
		Retryable: true,
	}
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *PipelineError {
	return &PipelineError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// ErrState creates a state machine error.
func ErrState(code, message string) *PipelineError {
	return &PipelineError{
		Kind:    KindState,
		Code:    code,
		Message: message,
	}
}

// KindOf extracts the error kind, defaulting to internal.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind checks whether an error belongs to a kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Predefined error codes.
const (
	CodeAgentFailed       = "AGENT_FAILED"
	CodeAgentUnknown      = "AGENT_UNKNOWN"
	CodeInvalidState      = "INVALID_STATE"
	CodeMissingSnapshot   = "MISSING_SNAPSHOT"
	CodeSequenceMismatch  = "SEQUENCE_MISMATCH"
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeCheckpointWrite   = "CHECKPOINT_WRITE"
	CodeCheckpointRead    = "CHECKPOINT_READ"
	CodeCheckpointMissing = "CHECKPOINT_MISSING"
	CodeEnvelopeVersion   = "ENVELOPE_VERSION"
)
