package enrichment

import (
	"context"
	"errors"

	"github.com/litevault/litevault-api/internal/redact"
)

// Error codes recorded on enrichment jobs.
const (
	CodeTimeout         = "LLM_TIMEOUT"
	CodeAPIError        = "LLM_API_ERROR"
	CodeValidationError = "LLM_VALIDATION_ERROR"
	CodeContentBlocked  = "LLM_CONTENT_BLOCKED"
	CodeLLMError        = "LLM_ERROR"
	CodeUnexpected      = "ENRICHMENT_ERROR"
)

// maxUnexpectedMessage caps messages of errors the provider did not classify.
const maxUnexpectedMessage = 200

// Common errors returned by the enrichment package.
var (
	// ErrInvalidResult is returned when a provider result fails normalization.
	ErrInvalidResult = errors.New("invalid enrichment result")

	// ErrInvalidConfig is returned when a provider is misconfigured.
	ErrInvalidConfig = errors.New("invalid enrichment provider configuration")
)

// Error is a classified provider failure. Its code is stored on the job.
type Error struct {
	Code    string
	Message string
	Err     error
}

// NewError creates an Error with a redacted message.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: redact.String(message), Err: cause}
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorCode returns the stable code for the failure.
func (e *Error) ErrorCode() string {
	return e.Code
}

// ValidationFailure reports whether the provider returned output that
// failed schema or normalization checks.
func (e *Error) ValidationFailure() bool {
	return e.Code == CodeValidationError
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps errors that a provider returned unclassified.
func classify(err error) error {
	var enrichErr *Error
	if errors.As(err, &enrichErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, "enrichment timed out", err)
	}
	if errors.Is(err, ErrInvalidResult) {
		return NewError(CodeValidationError, err.Error(), err)
	}
	return &Error{
		Code:    CodeUnexpected,
		Message: redact.Message(err.Error(), maxUnexpectedMessage),
		Err:     err,
	}
}
