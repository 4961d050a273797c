package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/litevault/litevault-api/internal/events"
	"github.com/litevault/litevault-api/internal/store"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel used for job wake-ups.
const DefaultNotifyChannel = "litevault_jobs"

// Broadcaster returns an events.BroadcastFunc that publishes job-created
// events on channel with pg_notify. db should be the pool, not a transaction:
// the Notifier only runs after the producing transaction committed.
func Broadcaster(db store.DBTX, channel string) events.BroadcastFunc {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return func(ctx context.Context, event *events.JobCreatedEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode job event: %w", err)
		}
		if _, err := db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, string(payload)); err != nil {
			return fmt.Errorf("failed to notify channel %s: %w", channel, err)
		}
		return nil
	}
}

func decodeEvent(payload string) (*events.JobCreatedEvent, error) {
	var event events.JobCreatedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to decode job event: %w", err)
	}
	return &event, nil
}
