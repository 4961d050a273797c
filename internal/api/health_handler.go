package api

import (
	"context"
	"net/http"
	"time"

	"github.com/litevault/litevault-api/internal/api/shared"
)

// Pinger reports database reachability. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PendingCounter reports the outbox backlog. *outbox.Service implements it.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     Pinger
	outbox PendingCounter
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db Pinger, outbox PendingCounter) *HealthHandler {
	return &HealthHandler{db: db, outbox: outbox}
}

// Health handles GET /health. It only proves the process serves requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz: the database must answer and the outbox
// backlog must be countable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	pending, err := h.outbox.PendingCount(ctx)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Outbox unavailable", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"status":       "ready",
		"pending_jobs": pending,
	})
}
