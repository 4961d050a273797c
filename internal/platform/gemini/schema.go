package gemini

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/litevault/litevault-api/internal/enrichment"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed assets/result.schema.json
var resultSchema string

// resultValidator checks raw model output against the result schema.
type resultValidator struct {
	schema *gojsonschema.Schema
}

func newResultValidator() (*resultValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid result schema: %w", err)
	}
	return &resultValidator{schema: schema}, nil
}

// parse validates text and decodes it into a Result.
func (v *resultValidator) parse(text string) (*enrichment.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, enrichment.NewError(enrichment.CodeValidationError, "empty LLM output", nil)
	}

	res, err := v.schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, enrichment.NewError(enrichment.CodeValidationError, "LLM output is not valid JSON", err)
	}
	if !res.Valid() {
		problems := make([]string, 0, len(res.Errors()))
		for _, item := range res.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", item.Field(), item.Description()))
		}
		return nil, enrichment.NewError(enrichment.CodeValidationError,
			"LLM output validation failed: "+strings.Join(problems, "; "), nil)
	}

	return decodeResult(text)
}
