package domain

import "errors"

var (
	// ErrValidation wraps field-level problems with a new or edited item.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a user action is not allowed
	// in the item's current status.
	ErrInvalidTransition = errors.New("invalid state transition")
)
