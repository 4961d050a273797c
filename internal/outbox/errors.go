package outbox

import (
	"context"
	"errors"
	"fmt"
)

// Error codes recorded on jobs for failures not classified by a handler.
const (
	ErrorCodeUnexpected     = "UNEXPECTED_ERROR"
	ErrorCodeTimeout        = "TIMEOUT"
	ErrorCodeUnknownJobType = "UNKNOWN_JOB_TYPE"
)

var (
	// ErrSubjectNotFound is returned by Handler.Load when the subject is gone.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrNoHandler is returned when a job type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")

	// ErrLeaseLost is returned by fenced Store writes when the job is held
	// by another worker or is no longer in progress.
	ErrLeaseLost = errors.New("job lease lost")
)

// CodedError is an error that carries a stable, machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
}

// IsValidationFailure reports whether err, or an error it wraps, marks the
// handler's output as invalid. Such failures are logged for alerting.
func IsValidationFailure(err error) bool {
	var v interface{ ValidationFailure() bool }
	return errors.As(err, &v) && v.ValidationFailure()
}

// Classify derives the stored error code and message for err.
func Classify(err error) (code, message string) {
	var coded CodedError
	switch {
	case errors.As(err, &coded):
		return coded.ErrorCode(), SanitizeMessage(coded.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout, SanitizeMessage(err.Error())
	case errors.Is(err, ErrNoHandler):
		return ErrorCodeUnknownJobType, SanitizeMessage(err.Error())
	default:
		return ErrorCodeUnexpected, SanitizeMessage(err.Error())
	}
}

// panicError wraps a recovered handler panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}
