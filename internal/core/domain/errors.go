package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the category of a generation failure.
type ErrorCode string

const (
	// CodeGenerationFailed covers provider/transport errors and terminal
	// content-safety rejections at the ceiling tier. Not retried.
	CodeGenerationFailed ErrorCode = "GENERATION_FAILED"

	// CodeValidationFailed means schema non-conformance persisted after the
	// retry budget was exhausted (or after a single attempt when retries are
	// disabled). Carries the final attempt's violations.
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// CodeCancelled means the caller's context was cancelled or its deadline
	// expired. No partial pack is ever returned.
	CodeCancelled ErrorCode = "CANCELLED"
)

// ErrProviderTimeout marks a per-attempt provider timeout. It consumes the
// validation-retry budget rather than aborting the call outright.
var ErrProviderTimeout = errors.New("provider attempt timed out")

// GenerationError is the canonical error for generation outcomes.
type GenerationError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s (%d violations)", e.Code, e.Message, len(e.Details))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails attaches schema violations to the error.
func (e *GenerationError) WithDetails(details []ValidationError) *GenerationError {
	e.Details = details
	return e
}

// ErrGenerationFailed creates a GENERATION_FAILED error.
func ErrGenerationFailed(message string) *GenerationError {
	return &GenerationError{Code: CodeGenerationFailed, Message: message}
}

// ErrValidationFailed creates a VALIDATION_FAILED error.
func ErrValidationFailed(message string) *GenerationError {
	return &GenerationError{Code: CodeValidationFailed, Message: message}
}

// ErrCancelled creates a CANCELLED error.
func ErrCancelled(message string) *GenerationError {
	return &GenerationError{Code: CodeCancelled, Message: message}
}
