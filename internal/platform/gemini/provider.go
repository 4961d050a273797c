package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/litevault/litevault-api/internal/config"
	"github.com/litevault/litevault-api/internal/enrichment"
	"github.com/litevault/litevault-api/internal/redact"
	"google.golang.org/genai"
)

// maxPromptText caps the item text placed in the prompt, in characters.
const maxPromptText = 8000

//go:embed assets/enrichment.tmpl
var defaultPrompt string

// ContentGenerator is the subset of the genai client used by Provider.
// *genai.Models implements it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Provider implements enrichment.Provider using the Gemini API.
type Provider struct {
	logger    *slog.Logger
	generator ContentGenerator
	prompt    *template.Template
	validator *resultValidator
	model     string
	config    *genai.GenerateContentConfig
	timeout   time.Duration
}

var _ enrichment.Provider = (*Provider)(nil)

type promptData struct {
	Text      string
	Truncated bool
}

// NewProvider creates a Provider with a Gemini API client.
func NewProvider(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Provider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", enrichment.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			enrichment.ErrInvalidConfig, redact.Error(err))
	}

	return NewProviderWithGenerator(client.Models, logger, cfg)
}

// NewProviderWithGenerator creates a Provider around an existing generator.
func NewProviderWithGenerator(
	generator ContentGenerator,
	logger *slog.Logger,
	cfg config.LLMConfig,
) (*Provider, error) {
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", enrichment.ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", enrichment.ErrInvalidConfig)
	}

	source := defaultPrompt
	if cfg.PromptPath != "" {
		content, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
				enrichment.ErrInvalidConfig, cfg.PromptPath, err)
		}
		source = string(content)
	}
	prompt, err := template.New("enrichment").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", enrichment.ErrInvalidConfig, err)
	}

	validator, err := newResultValidator()
	if err != nil {
		return nil, err
	}

	temperature := cfg.Temperature
	return &Provider{
		logger:    logger.With("component", "gemini_provider", "model", cfg.Model),
		generator: generator,
		prompt:    prompt,
		validator: validator,
		model:     cfg.Model,
		config: &genai.GenerateContentConfig{
			Temperature:      &temperature,
			MaxOutputTokens:  cfg.MaxOutputTokens,
			ResponseMIMEType: "application/json",
		},
		timeout: cfg.Timeout,
	}, nil
}

// Enrich implements enrichment.Provider.
func (p *Provider) Enrich(ctx context.Context, rawText string) (*enrichment.Result, error) {
	prompt, err := p.renderPrompt(rawText)
	if err != nil {
		return nil, enrichment.NewError(enrichment.CodeLLMError, "failed to build prompt", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.generator.GenerateContent(callCtx, p.model, genai.Text(prompt), p.config)
	if err != nil {
		return nil, p.mapCallError(ctx, callCtx, err)
	}

	text, err := responseText(resp)
	if err != nil {
		p.logger.WarnContext(ctx, "unusable Gemini response", "error", err)
		return nil, err
	}

	result, err := p.validator.parse(text)
	if err != nil {
		p.logger.WarnContext(ctx, "Gemini output failed validation", "error", err)
		return nil, err
	}

	p.logger.DebugContext(ctx, "Gemini call succeeded",
		"duration_ms", time.Since(start).Milliseconds(),
		"response_length", len(text))
	return result, nil
}

func (p *Provider) renderPrompt(rawText string) (string, error) {
	data := promptData{Text: rawText}
	if runes := []rune(rawText); len(runes) > maxPromptText {
		data.Text = string(runes[:maxPromptText])
		data.Truncated = true
	}

	var buf bytes.Buffer
	if err := p.prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

func (p *Provider) mapCallError(ctx, callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "Gemini call timed out", "timeout", p.timeout)
		return enrichment.NewError(enrichment.CodeTimeout,
			fmt.Sprintf("LLM request timed out after %s", p.timeout), err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		p.logger.ErrorContext(ctx, "Gemini API error",
			"status_code", apiErr.Code,
			"status", apiErr.Status)
		return enrichment.NewError(enrichment.CodeAPIError,
			fmt.Sprintf("LLM API error %d: %s", apiErr.Code, apiErr.Message), err)
	}

	p.logger.ErrorContext(ctx, "Gemini call failed", "error", redact.Error(err))
	return enrichment.NewError(enrichment.CodeLLMError, err.Error(), err)
}

// responseText extracts the text of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", enrichment.NewError(enrichment.CodeValidationError, "empty response from LLM", nil)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", enrichment.NewError(enrichment.CodeContentBlocked,
			fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason), nil)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", enrichment.NewError(enrichment.CodeValidationError, "no candidates in LLM response", nil)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", enrichment.NewError(enrichment.CodeContentBlocked, "content blocked by safety filters", nil)
	}
	if candidate.Content == nil {
		return "", enrichment.NewError(enrichment.CodeValidationError, "empty content in LLM response", nil)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// decodeResult unmarshals validated JSON into a Result.
func decodeResult(text string) (*enrichment.Result, error) {
	var result enrichment.Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, enrichment.NewError(enrichment.CodeValidationError, "LLM output is not valid JSON", err)
	}
	return &result, nil
}
