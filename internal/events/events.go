package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobCreatedEvent announces a newly committed outbox job.
type JobCreatedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	JobType   string    `json:"job_type"`
	CreatedAt time.Time `json:"created_at"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *JobCreatedEvent) error
}

// HandlerFunc adapts a plain function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobCreatedEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobCreatedEvent) error {
	return f(ctx, event)
}

// BroadcastFunc forwards an event to other processes, e.g. via PostgreSQL NOTIFY.
type BroadcastFunc func(ctx context.Context, event *JobCreatedEvent) error
