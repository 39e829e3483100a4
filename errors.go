package autopilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error type constants for classification and matching.
const (
	// ErrorTypeTransient marks failures worth retrying: network errors,
	// timeouts, rate limits.
	ErrorTypeTransient = "transient"

	// ErrorTypeValidation marks malformed or missing inputs (a prerequisite
	// document that does not exist, an invalid stage-order request). Never
	// retried.
	ErrorTypeValidation = "validation"

	// ErrorTypeUnresolvedAmbiguity marks a stage that exhausted its
	// clarifying-question budget without reaching a terminal result.
	ErrorTypeUnresolvedAmbiguity = "unresolved_ambiguity"

	// ErrorTypeCancelled marks an external interrupt. Never retried.
	ErrorTypeCancelled = "cancelled"

	// ErrorTypeFatal marks everything else. Unknown agent failures are fatal
	// rather than retried so a misbehaving runtime cannot burn the retry
	// budget on the same deterministic failure.
	ErrorTypeFatal = "fatal"
)

// WorkflowError is a structured failure carrying the stage it occurred in and
// a classification type. It supports Go's error wrapping via Unwrap.
type WorkflowError struct {
	Type    string `json:"type"`
	Stage   Stage  `json:"stage,omitempty"`
	Field   string `json:"field,omitempty"`
	Cause   string `json:"cause"`
	Wrapped error  `json:"-"`
}

func (e *WorkflowError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: stage %s: %s", e.Type, e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

func (e *WorkflowError) Unwrap() error {
	return e.Wrapped
}

// IsRecoverable reports whether the error may be retried. Only transient
// failures consume retry attempts.
func (e *WorkflowError) IsRecoverable() bool {
	return e.Type == ErrorTypeTransient
}

// NewTransientError wraps a transient agent failure for a stage.
func NewTransientError(stage Stage, err error) *WorkflowError {
	return &WorkflowError{
		Type:    ErrorTypeTransient,
		Stage:   stage,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// NewValidationError reports a malformed or missing input. The offending
// field is named so the caller can surface it.
func NewValidationError(stage Stage, field, cause string) *WorkflowError {
	return &WorkflowError{
		Type:  ErrorTypeValidation,
		Stage: stage,
		Field: field,
		Cause: fmt.Sprintf("%s: %s", field, cause),
	}
}

// NewAmbiguityError reports an exhausted question budget. The unanswered
// question is included verbatim.
func NewAmbiguityError(stage Stage, question string) *WorkflowError {
	return &WorkflowError{
		Type:  ErrorTypeUnresolvedAmbiguity,
		Stage: stage,
		Cause: fmt.Sprintf("question budget exhausted, unanswered: %s", question),
	}
}

// transientPatterns are matched against lowercased error text when no
// explicit classification is available.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"connection refused",
	"connection reset",
	"temporary failure",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
	"overloaded",
}

// ClassifyError converts an arbitrary error into a WorkflowError for the
// given stage. Existing WorkflowErrors pass through unchanged.
func ClassifyError(stage Stage, err error) *WorkflowError {
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return werr
	}
	if errors.Is(err, context.Canceled) {
		return &WorkflowError{
			Type:    ErrorTypeCancelled,
			Stage:   stage,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(stage, err)
	}
	text := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(text, pattern) {
			return NewTransientError(stage, err)
		}
	}
	return &WorkflowError{
		Type:    ErrorTypeFatal,
		Stage:   stage,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// IsErrorType reports whether err classifies as the given error type.
func IsErrorType(err error, errorType string) bool {
	if err == nil {
		return false
	}
	return ClassifyError("", err).Type == errorType
}

// IsCancellation reports whether err represents an external interrupt.
func IsCancellation(err error) bool {
	return IsErrorType(err, ErrorTypeCancelled)
}
