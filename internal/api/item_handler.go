package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/api/shared"
	"github.com/litevault/litevault-api/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ItemService is the subset of service.ItemService used by the handlers.
type ItemService interface {
	CreateItem(ctx context.Context, userID uuid.UUID, rawText string) (*domain.Item, error)
	GetItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Item, error)
	ListItems(ctx context.Context, userID uuid.UUID, status domain.ItemStatus, limit, offset int) ([]*domain.Item, error)
	ConfirmItem(ctx context.Context, userID, itemID uuid.UUID, tags []string) (*domain.Item, error)
	EditItem(ctx context.Context, userID, itemID uuid.UUID, title, summary *string, tags []string) (*domain.Item, error)
	DiscardItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Item, error)
	RetryEnrichment(ctx context.Context, userID, itemID uuid.UUID) (*domain.Item, error)
}

// ItemHandler serves the /api/items routes.
type ItemHandler struct {
	items ItemService
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(items ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

// CreateItem handles POST /api/items.
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	item, err := h.items.CreateItem(r.Context(), userID, req.Text)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, itemToResponse(item))
}

// ListItems handles GET /api/items?status=&limit=&offset=.
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	status := domain.ItemStatus(q.Get("status"))
	switch status {
	case "", domain.ItemStatusEnriching, domain.ItemStatusReadyToConfirm, domain.ItemStatusArchived,
		domain.ItemStatusDiscarded, domain.ItemStatusFailed:
	default:
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid status: invalid value")
		return
	}

	limit, ok := intParam(w, r, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		return
	}
	offset, ok := intParam(w, r, "offset", 0, 0, -1)
	if !ok {
		return
	}

	items, err := h.items.ListItems(r.Context(), userID, status, limit, offset)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	resp := ItemListResponse{Items: make([]ItemResponse, 0, len(items)), Limit: limit, Offset: offset}
	for _, item := range items {
		resp.Items = append(resp.Items, itemToResponse(item))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetItem handles GET /api/items/{id}.
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	userID, itemID, ok := userAndItemID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK)(h.items.GetItem(r.Context(), userID, itemID))
}

// ConfirmItem handles POST /api/items/{id}/confirm.
func (h *ItemHandler) ConfirmItem(w http.ResponseWriter, r *http.Request) {
	userID, itemID, ok := userAndItemID(w, r)
	if !ok {
		return
	}

	var req ConfirmItemRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}
	h.respond(w, r, http.StatusOK)(h.items.ConfirmItem(r.Context(), userID, itemID, req.Tags))
}

// EditItem handles PATCH /api/items/{id}.
func (h *ItemHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	userID, itemID, ok := userAndItemID(w, r)
	if !ok {
		return
	}

	var req EditItemRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.respond(w, r, http.StatusOK)(h.items.EditItem(r.Context(), userID, itemID, req.Title, req.Summary, req.Tags))
}

// DiscardItem handles POST /api/items/{id}/discard.
func (h *ItemHandler) DiscardItem(w http.ResponseWriter, r *http.Request) {
	userID, itemID, ok := userAndItemID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK)(h.items.DiscardItem(r.Context(), userID, itemID))
}

// RetryEnrichment handles POST /api/items/{id}/retry.
func (h *ItemHandler) RetryEnrichment(w http.ResponseWriter, r *http.Request) {
	userID, itemID, ok := userAndItemID(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusAccepted)(h.items.RetryEnrichment(r.Context(), userID, itemID))
}

func (h *ItemHandler) respond(w http.ResponseWriter, r *http.Request, status int) func(*domain.Item, error) {
	return func(item *domain.Item, err error) {
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		shared.RespondWithJSON(w, r, status, itemToResponse(item))
	}
}

func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
	}
	return userID, ok
}

func userAndItemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, itemID, true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, shared.ValidationMessage(err))
		return false
	}
	return true
}

// intParam parses an optional integer query parameter. A negative max means
// unbounded.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi >= 0 && n > hi) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}
