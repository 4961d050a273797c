package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/store"
)

const itemColumns = `id, user_id, raw_text, status, title, summary, tags, source_type,
	created_at, updated_at, confirmed_at`

// ItemStore implements store.ItemStore on SQLite.
type ItemStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ItemStore = (*ItemStore)(nil)

// NewItemStore creates an ItemStore.
func NewItemStore(db store.DBTX, log *slog.Logger) *ItemStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ItemStore{
		db:     db,
		logger: log.With(slog.String("component", "sqlite_item_store")),
	}
}

// WithTx returns an ItemStore bound to tx.
func (s *ItemStore) WithTx(tx *sql.Tx) store.ItemStore {
	return &ItemStore{db: tx, logger: s.logger}
}

// Create implements store.ItemStore.
func (s *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	tags, err := json.Marshal(nonNilTags(item.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, user_id, raw_text, status, title, summary, tags, source_type,
			created_at, updated_at, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.UserID.String(), item.RawText, string(item.Status),
		nullString(item.Title), nullString(item.Summary), string(tags), nullString(string(item.SourceType)),
		toNanos(item.CreatedAt), toNanos(item.UpdatedAt), nullNanos(item.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", mapError(err))
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("item created",
		slog.String("item_id", item.ID.String()),
		slog.String("user_id", item.UserID.String()))
	return nil
}

// GetByID implements store.ItemStore.
func (s *ItemStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id.String())
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetForUpdate implements store.ItemStore. Transactions begin IMMEDIATE, so
// the caller already holds the database write lock.
func (s *ItemStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.GetByID(ctx, id)
}

// Update implements store.ItemStore.
func (s *ItemStore) Update(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	tags, err := json.Marshal(nonNilTags(item.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET status = ?, title = ?, summary = ?, tags = ?, source_type = ?, updated_at = ?, confirmed_at = ?
		WHERE id = ?`,
		string(item.Status), nullString(item.Title), nullString(item.Summary), string(tags),
		nullString(string(item.SourceType)), toNanos(item.UpdatedAt), nullNanos(item.ConfirmedAt),
		item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", mapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrItemNotFound
	}
	return nil
}

// ListByUser implements store.ItemStore.
func (s *ItemStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	status domain.ItemStatus,
	limit, offset int,
) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE user_id = ? AND (? = '' OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		userID.String(), string(status), string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []*domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var id, userID, status, tags string
	var title, summary, sourceType sql.NullString
	var createdAt, updatedAt int64
	var confirmedAt sql.NullInt64

	if err := row.Scan(
		&id, &userID, &item.RawText, &status, &title, &summary, &tags, &sourceType,
		&createdAt, &updatedAt, &confirmedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if item.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid item id %q: %w", id, err)
	}
	if item.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags for item %s: %w", id, err)
	}
	item.Tags = nonNilTags(item.Tags)
	item.Status = domain.ItemStatus(status)
	item.Title = title.String
	item.Summary = summary.String
	item.SourceType = domain.SourceType(sourceType.String)
	item.CreatedAt = fromNanos(createdAt)
	item.UpdatedAt = fromNanos(updatedAt)
	item.ConfirmedAt = timePtr(confirmedAt)
	return &item, nil
}
