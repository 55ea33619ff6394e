// Package errors provides standardized error handling for the screening pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeDuplicateEvaluation ErrorCode = "DUPLICATE_EVALUATION"

	ErrCodeProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"

	ErrCodeVerdictParseFailed ErrorCode = "VERDICT_PARSE_FAILED"

	ErrCodePersistenceConflict ErrorCode = "PERSISTENCE_CONFLICT"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"

	ErrCodeCallSubmissionFailed ErrorCode = "CALL_SUBMISSION_FAILED"
	ErrCodeMessageSendFailed    ErrorCode = "MESSAGE_SEND_FAILED"
	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
)

// Sentinel values for errors.Is dispatch across package boundaries.
var (
	// ErrInvalidTransition: the requested event is not legal from the
	// application's current status. The application is left unchanged.
	ErrInvalidTransition = errors.New("INVALID_TRANSITION")

	// ErrDuplicateEvaluation: a concurrent writer committed the evaluation
	// first. Resolved by returning the existing record; not surfaced to
	// callers as a failure.
	ErrDuplicateEvaluation = errors.New("DUPLICATE_EVALUATION")

	// ErrProviderTimeout / ErrProviderUnavailable: retryable provider
	// failures. Call-submission failures decrement the per-application retry
	// budget before flipping to call_failed.
	ErrProviderTimeout     = errors.New("PROVIDER_TIMEOUT")
	ErrProviderUnavailable = errors.New("PROVIDER_UNAVAILABLE")

	// ErrVerdictParse: the scoring provider's verdict stayed unparseable
	// after the single repair pass. Fatal for that evaluation attempt.
	ErrVerdictParse = errors.New("VERDICT_PARSE_FAILED")

	// ErrPersistenceConflict: lock/serialization conflict between concurrent
	// writers. Retried at the per-item sub-transaction boundary.
	ErrPersistenceConflict = errors.New("PERSISTENCE_CONFLICT")
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidTransitionError creates a non-retryable transition error.
func NewInvalidTransitionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Event not permitted from current status",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a retryable provider timeout error.
func NewProviderTimeoutError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Provider request timed out",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderUnavailableError creates a retryable provider error.
func NewProviderUnavailableError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderUnavailable,
		Message:   "Provider request failed",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewVerdictParseError creates a non-retryable verdict parse error.
// The evaluation surfaces to the operator queue instead of guessing an outcome.
func NewVerdictParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeVerdictParseFailed,
		Message:   "Scoring verdict could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceConflictError creates a retryable lock-conflict error.
func NewPersistenceConflictError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceConflict,
		Message:   "Concurrent write conflict",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCallSubmissionFailedError creates a retryable call-submission error.
func NewCallSubmissionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCallSubmissionFailed,
		Message:   "Outbound call submission failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageSendFailedError creates a non-retryable send error; the failed
// delivery is recorded on the OutboundMessage row instead.
func NewMessageSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMessageSendFailed,
		Message:   "Outbound message delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a non-retryable extraction error; the
// cascade falls through to the next tier.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Document content extraction failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Helpers
// ==========================

// IsRetryable reports whether err carries a retryable StandardError, or is
// one of the retryable sentinels.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrPersistenceConflict)
}
