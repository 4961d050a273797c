package enrichment

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/litevault/litevault-api/internal/domain"
)

const (
	stubTitleLength   = 50
	stubSummaryLength = 150
)

var stubTagSets = [][]string{
	{"ideas", "notes"},
	{"research", "learning"},
	{"work", "projects"},
	{"personal", "ideas"},
	{"meetings", "notes"},
	{"design", "creative"},
}

// StubProvider derives enrichment deterministically from the text itself.
type StubProvider struct{}

var _ Provider = StubProvider{}

// Enrich implements Provider.
func (StubProvider) Enrich(ctx context.Context, rawText string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(rawText)
	firstLine, _, _ := strings.Cut(text, "\n")

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	tags := stubTagSets[h.Sum32()%uint32(len(stubTagSets))]

	source := domain.SourceTypeNote
	if strings.Contains(strings.ToLower(text), "http") {
		source = domain.SourceTypeArticle
	}

	return &Result{
		Title:      excerpt(text, firstLine, stubTitleLength),
		Summary:    excerpt(text, text, stubSummaryLength),
		Tags:       append([]string(nil), tags...),
		SourceType: source,
	}, nil
}

// excerpt cuts part to max runes and marks it with "..." when it does not
// cover all of text.
func excerpt(text, part string, max int) string {
	if utf8.RuneCountInString(part) > max {
		part = string([]rune(part)[:max])
	}
	part = strings.TrimSpace(part)
	if len(part) < len(text) {
		part += "..."
	}
	return part
}
