package gemini

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/litevault/litevault-api/internal/config"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/enrichment"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeGenerator returns a canned response and records the prompt it saw.
type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	block  bool
	prompt string
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:        "gemini",
		GeminiAPIKey:    "test-key",
		Model:           "gemini-test",
		Temperature:     0.3,
		MaxOutputTokens: 512,
		Timeout:         time.Second,
	}
}

func newTestProvider(t *testing.T, gen ContentGenerator, cfg config.LLMConfig) *Provider {
	t.Helper()

	log, _ := logger.GetTestLogger(t)
	p, err := NewProviderWithGenerator(gen, log, cfg)
	require.NoError(t, err)
	return p
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()

	var e *enrichment.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, code, e.Code)
}

func TestProvider_Enrich(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(
		`{"title":"Release notes","summary":"What changed in Go.","tags":["go","releases"],"source_type":"ARTICLE"}`,
	)}
	p := newTestProvider(t, gen, testConfig())

	result, err := p.Enrich(context.Background(), "https://go.dev/doc/devel/release")
	require.NoError(t, err)

	assert.Equal(t, "Release notes", result.Title)
	assert.Equal(t, "What changed in Go.", result.Summary)
	assert.Equal(t, []string{"go", "releases"}, result.Tags)
	assert.Equal(t, domain.SourceTypeArticle, result.SourceType)

	assert.Equal(t, "gemini-test", gen.model)
	assert.Contains(t, gen.prompt, "https://go.dev/doc/devel/release")
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	assert.Equal(t, int32(512), gen.config.MaxOutputTokens)
	require.NotNil(t, gen.config.Temperature)
	assert.InDelta(t, 0.3, *gen.config.Temperature, 0.0001)
}

func TestProvider_EnrichErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		code string
	}{
		{
			name: "api error",
			gen:  &fakeGenerator{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}},
			code: enrichment.CodeAPIError,
		},
		{
			name: "transport error",
			gen:  &fakeGenerator{err: errors.New("connection reset")},
			code: enrichment.CodeLLMError,
		},
		{
			name: "nil response",
			gen:  &fakeGenerator{},
			code: enrichment.CodeValidationError,
		},
		{
			name: "no candidates",
			gen:  &fakeGenerator{resp: &genai.GenerateContentResponse{}},
			code: enrichment.CodeValidationError,
		},
		{
			name: "safety finish",
			gen: &fakeGenerator{resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}},
			code: enrichment.CodeContentBlocked,
		},
		{
			name: "prompt blocked",
			gen: &fakeGenerator{resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			}},
			code: enrichment.CodeContentBlocked,
		},
		{
			name: "not json",
			gen:  &fakeGenerator{resp: textResponse("Sure! Here is a title.")},
			code: enrichment.CodeValidationError,
		},
		{
			name: "schema violation",
			gen:  &fakeGenerator{resp: textResponse(`{"title":"","summary":"s","tags":[],"source_type":"NOTE"}`)},
			code: enrichment.CodeValidationError,
		},
		{
			name: "missing field",
			gen:  &fakeGenerator{resp: textResponse(`{"title":"t","summary":"s","tags":["a"]}`)},
			code: enrichment.CodeValidationError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, tc.gen, testConfig())

			_, err := p.Enrich(context.Background(), "some text")
			requireCode(t, err, tc.code)
		})
	}
}

func TestProvider_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	p := newTestProvider(t, &fakeGenerator{block: true}, cfg)

	_, err := p.Enrich(context.Background(), "some text")
	requireCode(t, err, enrichment.CodeTimeout)
}

func TestProvider_RedactsAPIErrorMessage(t *testing.T) {
	gen := &fakeGenerator{err: genai.APIError{Code: 400, Message: "API key not valid: AIzaSyA1234567890abcdefghijklmnop"}}
	p := newTestProvider(t, gen, testConfig())

	_, err := p.Enrich(context.Background(), "some text")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIzaSyA1234567890abcdefghijklmnop")
}

func TestProvider_TruncatesLongText(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(`{"title":"t","summary":"s","tags":["a"],"source_type":"NOTE"}`)}
	p := newTestProvider(t, gen, testConfig())

	_, err := p.Enrich(context.Background(), strings.Repeat("x", maxPromptText+100))
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "[Content truncated]")
	assert.NotContains(t, gen.prompt, strings.Repeat("x", maxPromptText+1))
}

func TestProvider_CustomPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Summarize: {{.Text}}"), 0o600))

	cfg := testConfig()
	cfg.PromptPath = path
	gen := &fakeGenerator{resp: textResponse(`{"title":"t","summary":"s","tags":["a"],"source_type":"NOTE"}`)}
	p := newTestProvider(t, gen, cfg)

	_, err := p.Enrich(context.Background(), "hello <world>")
	require.NoError(t, err)
	assert.Equal(t, "Summarize: hello <world>", gen.prompt)
}

func TestNewProviderWithGenerator_InvalidConfig(t *testing.T) {
	log, _ := logger.GetTestLogger(t)

	tests := map[string]func(*config.LLMConfig){
		"missing model":  func(c *config.LLMConfig) { c.Model = "" },
		"zero timeout":   func(c *config.LLMConfig) { c.Timeout = 0 },
		"missing prompt": func(c *config.LLMConfig) { c.PromptPath = filepath.Join(t.TempDir(), "absent.tmpl") },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)

			_, err := NewProviderWithGenerator(&fakeGenerator{}, log, cfg)
			assert.ErrorIs(t, err, enrichment.ErrInvalidConfig)
		})
	}

	_, err := NewProviderWithGenerator(nil, log, testConfig())
	assert.Error(t, err)
	_, err = NewProviderWithGenerator(&fakeGenerator{}, nil, testConfig())
	assert.Error(t, err)
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	cfg := testConfig()
	cfg.GeminiAPIKey = ""

	_, err := NewProvider(context.Background(), log, cfg)
	assert.ErrorIs(t, err, enrichment.ErrInvalidConfig)
}
