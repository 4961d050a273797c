package api

import (
	"time"

	"github.com/litevault/litevault-api/internal/domain"
)

// CreateItemRequest is the body of POST /api/items.
type CreateItemRequest struct {
	Text string `json:"text" validate:"required,max=10000"`
}

// ConfirmItemRequest is the body of POST /api/items/{id}/confirm. Omitted
// tags keep the enriched ones.
type ConfirmItemRequest struct {
	Tags []string `json:"tags" validate:"omitempty,max=3,dive,required,max=50"`
}

// EditItemRequest is the body of PATCH /api/items/{id}.
type EditItemRequest struct {
	Title   *string  `json:"title" validate:"omitempty,max=100"`
	Summary *string  `json:"summary" validate:"omitempty,max=500"`
	Tags    []string `json:"tags" validate:"omitempty,max=3,dive,required,max=50"`
}

// ItemResponse is the wire form of an item.
type ItemResponse struct {
	ID          string     `json:"id"`
	RawText     string     `json:"raw_text"`
	Status      string     `json:"status"`
	Title       string     `json:"title,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Tags        []string   `json:"tags"`
	SourceType  string     `json:"source_type,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// ItemListResponse is the body of GET /api/items.
type ItemListResponse struct {
	Items  []ItemResponse `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func itemToResponse(item *domain.Item) ItemResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return ItemResponse{
		ID:          item.ID.String(),
		RawText:     item.RawText,
		Status:      string(item.Status),
		Title:       item.Title,
		Summary:     item.Summary,
		Tags:        tags,
		SourceType:  string(item.SourceType),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		ConfirmedAt: item.ConfirmedAt,
	}
}
