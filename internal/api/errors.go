package api

import (
	"errors"
	"net/http"

	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/service"
	"github.com/litevault/litevault-api/internal/service/auth"
)

// MapErrorToStatusCode maps service and domain errors to HTTP status codes.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	var transition *domain.TransitionError
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.As(err, &transition):
		return transition.Error()
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"
	case errors.Is(err, service.ErrNotOwned):
		return "You do not own this item"
	case errors.Is(err, service.ErrItemNotFound):
		return "Item not found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Action not allowed in the item's current state"
	case errors.Is(err, domain.ErrEmptyItemText):
		return "Item text cannot be empty"
	case errors.Is(err, domain.ErrItemTextTooLong):
		return domain.ErrItemTextTooLong.Error()
	case errors.Is(err, domain.ErrValidation):
		return "Invalid item data"
	default:
		return "An unexpected error occurred"
	}
}
