package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/redact"
)

// Result limits.
const (
	MaxTitleLength   = 100
	MaxSummaryLength = 500
	MaxTags          = 3
	MaxTagLength     = 50
)

// Provider derives enrichment from raw text. Implementations return *Error
// for failures they can classify.
type Provider interface {
	Enrich(ctx context.Context, rawText string) (*Result, error)
}

// Result is the output of a Provider.
type Result struct {
	Title      string            `json:"title"`
	Summary    string            `json:"summary"`
	Tags       []string          `json:"tags"`
	SourceType domain.SourceType `json:"source_type"`
}

// Normalize trims and bounds the result in place: tags are lowercased,
// deduplicated and capped, over-long tags are dropped and an unknown source
// type becomes NOTE. It fails if title, summary or tags end up empty.
func Normalize(r *Result) error {
	if r == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidResult)
	}

	r.Title = redact.Truncate(strings.TrimSpace(r.Title), MaxTitleLength)
	if r.Title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidResult)
	}

	r.Summary = redact.Truncate(strings.TrimSpace(r.Summary), MaxSummaryLength)
	if r.Summary == "" {
		return fmt.Errorf("%w: summary cannot be empty", ErrInvalidResult)
	}

	seen := make(map[string]bool, len(r.Tags))
	tags := make([]string, 0, MaxTags)
	for _, tag := range r.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] || len([]rune(tag)) > MaxTagLength {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == MaxTags {
			break
		}
	}
	if len(tags) == 0 {
		return fmt.Errorf("%w: at least one valid tag is required", ErrInvalidResult)
	}
	r.Tags = tags

	switch domain.SourceType(strings.ToUpper(strings.TrimSpace(string(r.SourceType)))) {
	case domain.SourceTypeArticle:
		r.SourceType = domain.SourceTypeArticle
	default:
		r.SourceType = domain.SourceTypeNote
	}
	return nil
}
