package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
)

// ItemStore defines the interface for item data persistence.
type ItemStore interface {
	// Create saves a new item to the store.
	// Returns validation errors from the domain Item if data is invalid.
	Create(ctx context.Context, item *domain.Item) error

	// GetByID retrieves an item by its unique ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	// GetForUpdate retrieves an item and locks its row until the surrounding
	// transaction ends. Stores without row locks rely on their write
	// serialization instead.
	// Returns ErrItemNotFound if the item does not exist.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	// Update saves changes to an existing item.
	// Returns ErrItemNotFound if the item does not exist.
	Update(ctx context.Context, item *domain.Item) error

	// ListByUser returns a user's items, newest first, optionally filtered by status.
	ListByUser(ctx context.Context, userID uuid.UUID, status domain.ItemStatus, limit, offset int) ([]*domain.Item, error)

	// WithTx returns a new ItemStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ItemStore
}
