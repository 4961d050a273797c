package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/enrichment"
	"github.com/litevault/litevault-api/internal/outbox"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/store"
)

// Enqueuer is the producer side of the outbox. *outbox.Service implements it.
type Enqueuer interface {
	EnqueueTx(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID, jobType string) (*outbox.Job, error)
	Announce(ctx context.Context, job *outbox.Job)
	CancelForSubject(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID) (int, error)
}

// ItemService implements the user-facing item workflows.
type ItemService struct {
	items  store.ItemStore
	tx     outbox.Transactor
	outbox Enqueuer
	logger *slog.Logger
}

// NewItemService creates an ItemService. All dependencies except logger are required.
func NewItemService(items store.ItemStore, tx outbox.Transactor, enqueuer Enqueuer, log *slog.Logger) (*ItemService, error) {
	if items == nil {
		return nil, &ItemServiceError{Operation: "create_service", Message: "items cannot be nil"}
	}
	if tx == nil {
		return nil, &ItemServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	}
	if enqueuer == nil {
		return nil, &ItemServiceError{Operation: "create_service", Message: "enqueuer cannot be nil"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ItemService{
		items:  items,
		tx:     tx,
		outbox: enqueuer,
		logger: log.With("component", "item_service"),
	}, nil
}

// CreateItem stores a new ENRICHING item together with its enrichment job.
func (s *ItemService) CreateItem(ctx context.Context, userID uuid.UUID, rawText string) (*domain.Item, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	item, err := domain.NewItem(userID, rawText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	var job *outbox.Job
	err = s.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.items.WithTx(tx).Create(ctx, item); err != nil {
			return NewItemServiceError("create_item", "failed to save item", err)
		}
		job, err = s.outbox.EnqueueTx(ctx, tx, item.ID, enrichment.JobType)
		if err != nil {
			return NewItemServiceError("create_item", "failed to enqueue enrichment", err)
		}
		return nil
	})
	if err != nil {
		log.Error("failed to create item", "error", err, "user_id", userID)
		return nil, err
	}

	s.outbox.Announce(ctx, job)
	log.Info("item created", "item_id", item.ID, "job_id", job.ID)
	return item, nil
}

// GetItem returns an item owned by userID.
func (s *ItemService) GetItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, NewItemServiceError("get_item", "failed to load item", err)
	}
	if item.UserID != userID {
		return nil, ErrNotOwned
	}
	return item, nil
}

// ListItems returns the user's items, newest first. An empty status lists all.
func (s *ItemService) ListItems(
	ctx context.Context,
	userID uuid.UUID,
	status domain.ItemStatus,
	limit, offset int,
) ([]*domain.Item, error) {
	items, err := s.items.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, NewItemServiceError("list_items", "failed to list items", err)
	}
	return items, nil
}

// ConfirmItem archives a READY_TO_CONFIRM item. Nil tags keep the enriched ones.
func (s *ItemService) ConfirmItem(ctx context.Context, userID, itemID uuid.UUID, tags []string) (*domain.Item, error) {
	item, _, err := s.mutate(ctx, "confirm_item", userID, itemID, func(ctx context.Context, tx *sql.Tx, item *domain.Item) (*outbox.Job, error) {
		return nil, item.Confirm(tags)
	})
	return item, err
}

// EditItem changes user-editable fields of a READY_TO_CONFIRM or ARCHIVED item.
func (s *ItemService) EditItem(
	ctx context.Context,
	userID, itemID uuid.UUID,
	title, summary *string,
	tags []string,
) (*domain.Item, error) {
	item, _, err := s.mutate(ctx, "edit_item", userID, itemID, func(ctx context.Context, tx *sql.Tx, item *domain.Item) (*outbox.Job, error) {
		return nil, item.Edit(title, summary, tags)
	})
	return item, err
}

// DiscardItem abandons an item and removes any outbox jobs still referring to it.
func (s *ItemService) DiscardItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Item, error) {
	item, _, err := s.mutate(ctx, "discard_item", userID, itemID, func(ctx context.Context, tx *sql.Tx, item *domain.Item) (*outbox.Job, error) {
		if err := item.Discard(); err != nil {
			return nil, err
		}
		if _, err := s.outbox.CancelForSubject(ctx, tx, item.ID); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return item, err
}

// RetryEnrichment returns a FAILED item to ENRICHING and enqueues a fresh job.
func (s *ItemService) RetryEnrichment(ctx context.Context, userID, itemID uuid.UUID) (*domain.Item, error) {
	item, job, err := s.mutate(ctx, "retry_enrichment", userID, itemID, func(ctx context.Context, tx *sql.Tx, item *domain.Item) (*outbox.Job, error) {
		if err := item.RetryEnrichment(); err != nil {
			return nil, err
		}
		return s.outbox.EnqueueTx(ctx, tx, item.ID, enrichment.JobType)
	})
	if err != nil {
		return nil, err
	}
	s.outbox.Announce(ctx, job)
	return item, nil
}

type mutation func(ctx context.Context, tx *sql.Tx, item *domain.Item) (*outbox.Job, error)

// mutate locks the item, checks ownership, applies fn and persists the item,
// all inside one transaction.
func (s *ItemService) mutate(
	ctx context.Context,
	op string,
	userID, itemID uuid.UUID,
	fn mutation,
) (*domain.Item, *outbox.Job, error) {
	var item *domain.Item
	var job *outbox.Job

	err := s.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		items := s.items.WithTx(tx)

		var err error
		item, err = items.GetForUpdate(ctx, itemID)
		if err != nil {
			return NewItemServiceError(op, "failed to load item", err)
		}
		if item.UserID != userID {
			return ErrNotOwned
		}

		job, err = fn(ctx, tx, item)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return err
			}
			return NewItemServiceError(op, "failed to apply change", err)
		}

		if err := items.Update(ctx, item); err != nil {
			return NewItemServiceError(op, "failed to save item", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, ErrNotOwned) && !errors.Is(err, ErrItemNotFound) {
			logger.FromContextOrDefault(ctx, s.logger).Error("item update failed",
				"operation", op,
				"item_id", itemID,
				"error", err)
		}
		return nil, nil, err
	}
	return item, job, nil
}
