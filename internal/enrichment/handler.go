package enrichment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/outbox"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/store"
)

// JobType is the outbox job type served by Handler.
const JobType = "enrichment"

// Handler runs enrichment jobs for items.
type Handler struct {
	items    store.ItemStore
	provider Provider
	logger   *slog.Logger
}

var _ outbox.Handler = (*Handler)(nil)

// NewHandler creates a Handler.
func NewHandler(items store.ItemStore, provider Provider, log *slog.Logger) *Handler {
	if items == nil {
		panic("items store cannot be nil")
	}
	if provider == nil {
		panic("provider cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		items:    items,
		provider: provider,
		logger:   log.With("component", "enrichment_handler"),
	}
}

// Load implements outbox.Handler.
func (h *Handler) Load(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID) (outbox.Subject, error) {
	item, err := h.items.WithTx(tx).GetForUpdate(ctx, subjectID)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, outbox.ErrSubjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Process implements outbox.Handler.
func (h *Handler) Process(ctx context.Context, subject outbox.Subject) (any, error) {
	item, err := asItem(subject)
	if err != nil {
		return nil, err
	}

	result, err := h.provider.Enrich(ctx, item.RawText)
	if err != nil {
		return nil, classify(err)
	}
	if err := Normalize(result); err != nil {
		return nil, classify(err)
	}

	logger.FromContextOrDefault(ctx, h.logger).Debug("item enriched",
		"item_id", item.ID,
		"title_length", len(result.Title),
		"tag_count", len(result.Tags),
		"source_type", result.SourceType)
	return result, nil
}

// Apply implements outbox.Handler.
func (h *Handler) Apply(ctx context.Context, tx *sql.Tx, subject outbox.Subject, result any) error {
	item, err := asItem(subject)
	if err != nil {
		return err
	}
	r, ok := result.(*Result)
	if !ok {
		return fmt.Errorf("unexpected enrichment result type %T", result)
	}
	if !item.MarkEnriched(r.Title, r.Summary, r.Tags, r.SourceType) {
		return nil
	}
	return h.items.WithTx(tx).Update(ctx, item)
}

// Fail implements outbox.Handler.
func (h *Handler) Fail(ctx context.Context, tx *sql.Tx, subject outbox.Subject) error {
	item, err := asItem(subject)
	if err != nil {
		return err
	}
	if !item.MarkFailed() {
		return nil
	}
	return h.items.WithTx(tx).Update(ctx, item)
}

func asItem(subject outbox.Subject) (*domain.Item, error) {
	item, ok := subject.(*domain.Item)
	if !ok {
		return nil, fmt.Errorf("unexpected subject type %T", subject)
	}
	return item, nil
}
