package service

import (
	"errors"
	"fmt"

	"github.com/litevault/litevault-api/internal/store"
)

// Sentinel errors returned by ItemService. The API layer maps them to HTTP
// status codes.
var (
	// ErrNotOwned indicates the item belongs to a different user.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrItemNotFound indicates the item does not exist.
	ErrItemNotFound = errors.New("item not found")
)

// ItemServiceError wraps unexpected failures with the operation that hit them.
type ItemServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ItemServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("item service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("item service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ItemServiceError) Unwrap() error {
	return e.Err
}

// NewItemServiceError wraps err. Service sentinels pass through unchanged and
// store not-found errors become ErrItemNotFound.
func NewItemServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, store.ErrItemNotFound):
		return ErrItemNotFound
	case errors.Is(err, ErrNotOwned):
		return ErrNotOwned
	}
	return &ItemServiceError{Operation: operation, Message: message, Err: err}
}
