package enrichment

import (
	"context"
	"strings"
	"testing"

	"github.com/litevault/litevault-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubProvider_Enrich(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		title   string
		summary string
		source  domain.SourceType
	}{
		{
			name:    "short note",
			text:    "Buy milk",
			title:   "Buy milk",
			summary: "Buy milk",
			source:  domain.SourceTypeNote,
		},
		{
			name:    "multi-line note",
			text:    "Meeting notes\nDiscussed roadmap",
			title:   "Meeting notes...",
			summary: "Meeting notes\nDiscussed roadmap",
			source:  domain.SourceTypeNote,
		},
		{
			name:    "link",
			text:    "Read HTTPS://example.com/post",
			title:   "Read HTTPS://example.com/post",
			summary: "Read HTTPS://example.com/post",
			source:  domain.SourceTypeArticle,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := StubProvider{}.Enrich(context.Background(), tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.title, r.Title)
			assert.Equal(t, tc.summary, r.Summary)
			assert.Equal(t, tc.source, r.SourceType)
			assert.Len(t, r.Tags, 2)
			require.NoError(t, Normalize(r))
		})
	}
}

func TestStubProvider_TruncatesLongText(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 200)
	r, err := StubProvider{}.Enrich(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("a", 50)+"...", r.Title)
	assert.Equal(t, strings.Repeat("a", 150)+"...", r.Summary)
}

func TestStubProvider_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := StubProvider{}.Enrich(context.Background(), "same text")
	require.NoError(t, err)
	b, err := StubProvider{}.Enrich(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	a.Tags[0] = "mutated"
	c, err := StubProvider{}.Enrich(context.Background(), "same text")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", c.Tags[0])
}

func TestStubProvider_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StubProvider{}.Enrich(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
