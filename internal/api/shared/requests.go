package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return errors.New("decode request body: unexpected trailing data")
	}
	return nil
}

// ValidateRequest runs struct-tag validation on v.
func ValidateRequest(v any) error {
	return validate.Struct(v)
}

// ValidationMessage turns a validator error into a client-safe message
// naming the first failing field.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Invalid %s: required field", fe.Field())
	case "max":
		return fmt.Sprintf("Invalid %s: too long", fe.Field())
	case "min":
		return fmt.Sprintf("Invalid %s: too short", fe.Field())
	case "oneof":
		return fmt.Sprintf("Invalid %s: invalid value", fe.Field())
	default:
		return fmt.Sprintf("Invalid %s: validation failed", fe.Field())
	}
}
