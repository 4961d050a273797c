package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/litevault/litevault-api/internal/api/middleware"
	"github.com/litevault/litevault-api/internal/service/auth"
)

// RouterDeps are the collaborators served by NewRouter.
type RouterDeps struct {
	Logger *slog.Logger
	JWT    auth.JWTService
	Items  ItemService
	DB     Pinger
	Outbox PendingCounter
}

// NewRouter builds the HTTP handler for the whole API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewTraceMiddleware(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	health := NewHealthHandler(deps.DB, deps.Outbox)
	r.Get("/health", health.Health)
	r.Get("/readyz", health.Ready)

	items := NewItemHandler(deps.Items)
	authMiddleware := middleware.NewAuthMiddleware(deps.JWT)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/items", items.CreateItem)
		r.Get("/items", items.ListItems)
		r.Get("/items/{id}", items.GetItem)
		r.Patch("/items/{id}", items.EditItem)
		r.Post("/items/{id}/confirm", items.ConfirmItem)
		r.Post("/items/{id}/discard", items.DiscardItem)
		r.Post("/items/{id}/retry", items.RetryEnrichment)
	})

	return r
}
