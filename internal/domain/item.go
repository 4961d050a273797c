package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ItemStatus represents the lifecycle state of a captured item.
type ItemStatus string

// Possible item status values.
const (
	ItemStatusEnriching      ItemStatus = "ENRICHING"
	ItemStatusReadyToConfirm ItemStatus = "READY_TO_CONFIRM"
	ItemStatusArchived       ItemStatus = "ARCHIVED"
	ItemStatusDiscarded      ItemStatus = "DISCARDED"
	ItemStatusFailed         ItemStatus = "FAILED"
)

// SourceType classifies the captured text.
type SourceType string

// Possible source types.
const (
	SourceTypeNote    SourceType = "NOTE"
	SourceTypeArticle SourceType = "ARTICLE"
)

// MaxRawTextLength is the largest accepted raw text, in characters.
const MaxRawTextLength = 10000

// Item actions, used in transition errors.
const (
	ActionConfirm = "confirm"
	ActionDiscard = "discard"
	ActionEdit    = "edit"
	ActionRetry   = "retry"
)

// Validation errors for Item.
var (
	ErrEmptyItemID      = errors.New("item ID cannot be empty")
	ErrEmptyItemUserID  = errors.New("item user ID cannot be empty")
	ErrEmptyItemText    = errors.New("item text cannot be empty")
	ErrItemTextTooLong  = fmt.Errorf("item text cannot exceed %d characters", MaxRawTextLength)
	ErrInvalidItemState = errors.New("invalid item status")
)

var allowedActions = map[ItemStatus][]string{
	ItemStatusEnriching:      nil,
	ItemStatusReadyToConfirm: {ActionConfirm, ActionDiscard, ActionEdit},
	ItemStatusFailed:         {ActionDiscard, ActionRetry},
	ItemStatusArchived:       {ActionEdit},
	ItemStatusDiscarded:      nil,
}

// TransitionError describes a rejected user action.
type TransitionError struct {
	Action  string
	Current ItemStatus
	Allowed []string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s item in %s state", e.Action, e.Current)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Item is a piece of raw text captured by a user, together with the
// title, summary and tags derived from it by enrichment.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	RawText     string     `json:"raw_text"`
	Status      ItemStatus `json:"status"`
	Title       string     `json:"title,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Tags        []string   `json:"tags"`
	SourceType  SourceType `json:"source_type,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// NewItem creates an item awaiting enrichment. The text is trimmed before
// validation.
func NewItem(userID uuid.UUID, rawText string) (*Item, error) {
	now := time.Now().UTC()
	item := &Item{
		ID:        uuid.New(),
		UserID:    userID,
		RawText:   strings.TrimSpace(rawText),
		Status:    ItemStatusEnriching,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the Item has valid data.
func (i *Item) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyItemID
	}
	if i.UserID == uuid.Nil {
		return ErrEmptyItemUserID
	}
	if i.RawText == "" {
		return ErrEmptyItemText
	}
	if utf8.RuneCountInString(i.RawText) > MaxRawTextLength {
		return ErrItemTextTooLong
	}
	if _, ok := allowedActions[i.Status]; !ok {
		return ErrInvalidItemState
	}
	return nil
}

// AwaitingProcessing reports whether the item is in the single state that
// legitimately precedes enrichment.
func (i *Item) AwaitingProcessing() bool {
	return i.Status == ItemStatusEnriching
}

// CanTransition reports whether action is allowed in the current state.
func (i *Item) CanTransition(action string) bool {
	return slices.Contains(allowedActions[i.Status], action)
}

func (i *Item) checkTransition(action string) error {
	if i.CanTransition(action) {
		return nil
	}
	return &TransitionError{
		Action:  action,
		Current: i.Status,
		Allowed: slices.Clone(allowedActions[i.Status]),
	}
}

// MarkEnriched stores the enrichment result and moves the item to
// READY_TO_CONFIRM. It is a no-op returning false outside ENRICHING.
func (i *Item) MarkEnriched(title, summary string, tags []string, source SourceType) bool {
	if i.Status != ItemStatusEnriching {
		return false
	}
	i.Title = title
	i.Summary = summary
	i.Tags = slices.Clone(tags)
	i.SourceType = source
	i.Status = ItemStatusReadyToConfirm
	i.UpdatedAt = time.Now().UTC()
	return true
}

// MarkFailed moves the item to FAILED. It is a no-op returning false
// outside ENRICHING.
func (i *Item) MarkFailed() bool {
	if i.Status != ItemStatusEnriching {
		return false
	}
	i.Status = ItemStatusFailed
	i.UpdatedAt = time.Now().UTC()
	return true
}

// Confirm archives the item, optionally replacing its tags.
func (i *Item) Confirm(tags []string) error {
	if err := i.checkTransition(ActionConfirm); err != nil {
		return err
	}
	now := time.Now().UTC()
	i.Status = ItemStatusArchived
	i.ConfirmedAt = &now
	i.UpdatedAt = now
	if tags != nil {
		i.Tags = slices.Clone(tags)
	}
	return nil
}

// Discard abandons the item.
func (i *Item) Discard() error {
	if err := i.checkTransition(ActionDiscard); err != nil {
		return err
	}
	i.Status = ItemStatusDiscarded
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Edit updates user-editable fields. Nil arguments leave fields unchanged.
func (i *Item) Edit(title, summary *string, tags []string) error {
	if err := i.checkTransition(ActionEdit); err != nil {
		return err
	}
	if title != nil {
		i.Title = *title
	}
	if summary != nil {
		i.Summary = *summary
	}
	if tags != nil {
		i.Tags = slices.Clone(tags)
	}
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// RetryEnrichment returns a failed item to ENRICHING.
func (i *Item) RetryEnrichment() error {
	if err := i.checkTransition(ActionRetry); err != nil {
		return err
	}
	i.Status = ItemStatusEnriching
	i.UpdatedAt = time.Now().UTC()
	return nil
}
