package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every lookup miss.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate reports a primary key or unique constraint collision.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity reports a row rejected by a check, foreign key or
	// not-null constraint.
	ErrInvalidEntity = errors.New("invalid entity")

	ErrItemNotFound = fmt.Errorf("%w: item", ErrNotFound)
	ErrJobNotFound  = fmt.Errorf("%w: job", ErrNotFound)
)

// IsNotFoundError reports whether err is, or wraps, ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
