package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/store"
)

const itemColumns = `id, user_id, raw_text, status, title, summary, tags, source_type,
	created_at, updated_at, confirmed_at`

// ItemStore implements store.ItemStore on PostgreSQL.
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
		logger: log.With(slog.String("component", "postgres_item_store")),
	}
}

// WithTx returns an ItemStore bound to tx.
func (s *ItemStore) WithTx(tx *sql.Tx) store.ItemStore {
	return &ItemStore{db: tx, logger: s.logger}
}

// Create implements store.ItemStore.
func (s *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, user_id, raw_text, status, title, summary, tags, source_type,
			created_at, updated_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.UserID, item.RawText, string(item.Status),
		nullString(item.Title), nullString(item.Summary), tags, nullString(string(item.SourceType)),
		item.CreatedAt, item.UpdatedAt, nullTime(item.ConfirmedAt),
	)
	if err != nil {
		log.Error("failed to create item", slog.String("item_id", item.ID.String()), slog.String("error", err.Error()))
		return fmt.Errorf("failed to create item: %w", MapError(err))
	}
	return nil
}

// GetByID implements store.ItemStore.
func (s *ItemStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.get(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
}

// GetForUpdate implements store.ItemStore with a row lock held until the
// surrounding transaction ends.
func (s *ItemStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.get(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id)
}

func (s *ItemStore) get(ctx context.Context, query string, id uuid.UUID) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", MapError(err))
	}
	return item, nil
}

// Update implements store.ItemStore.
func (s *ItemStore) Update(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET status = $1, title = $2, summary = $3, tags = $4, source_type = $5,
			updated_at = $6, confirmed_at = $7
		WHERE id = $8`,
		string(item.Status), nullString(item.Title), nullString(item.Summary), tags,
		nullString(string(item.SourceType)), item.UpdatedAt, nullTime(item.ConfirmedAt), item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrItemNotFound)
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
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		userID, string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", MapError(err))
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

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var status string
	var tags []byte
	var title, summary, sourceType sql.NullString
	var confirmedAt sql.NullTime

	if err := row.Scan(
		&item.ID, &item.UserID, &item.RawText, &status, &title, &summary, &tags, &sourceType,
		&item.CreatedAt, &item.UpdatedAt, &confirmedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tags, &item.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags for item %s: %w", item.ID, err)
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	item.Status = domain.ItemStatus(status)
	item.Title = title.String
	item.Summary = summary.String
	item.SourceType = domain.SourceType(sourceType.String)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		item.ConfirmedAt = &t
	}
	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
