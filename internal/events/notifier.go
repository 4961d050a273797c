package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Notifier is the dispatch wake-up channel shared by job producers and the
// worker. It is constructed once and injected into both sides.
type Notifier struct {
	enabled   bool
	logger    *slog.Logger
	broadcast BroadcastFunc

	mu      sync.RWMutex
	handler EventHandler
	gen     uint64
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBroadcast installs a cross-process forwarder invoked by Notify.
func WithBroadcast(fn BroadcastFunc) Option {
	return func(n *Notifier) {
		n.broadcast = fn
	}
}

// NewNotifier creates a Notifier. When enabled is false every Notify is a no-op.
func NewNotifier(enabled bool, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		enabled: enabled,
		logger:  logger.With("component", "dispatch_notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether notifications are delivered at all.
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Register installs handler as the single subscriber, replacing any previous
// one. The returned function removes it again; calling it after a later
// Register has replaced the handler does nothing.
func (n *Notifier) Register(handler EventHandler) (unregister func()) {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.handler = handler
	n.mu.Unlock()

	n.logger.Debug("notify handler registered")

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.gen == gen {
			n.handler = nil
			n.logger.Debug("notify handler cleared")
		}
	}
}

// Notify announces a committed job to the local subscriber and to the
// broadcaster. It never fails; errors and panics are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, event *JobCreatedEvent) {
	if !n.enabled {
		return
	}
	if n.broadcast != nil {
		if err := n.safeCall(ctx, event, n.broadcast); err != nil {
			n.logger.Warn("notify broadcast failed", "job_id", event.JobID, "error", err)
		}
	}
	n.Deliver(ctx, event)
}

// Deliver hands an event to the local subscriber only. Listeners that
// receive broadcasts from other processes use it to avoid echoing.
func (n *Notifier) Deliver(ctx context.Context, event *JobCreatedEvent) {
	if !n.enabled {
		return
	}

	n.mu.RLock()
	handler := n.handler
	n.mu.RUnlock()

	if handler == nil {
		n.logger.Debug("no notify handler registered, skipping", "job_id", event.JobID)
		return
	}

	if err := n.safeCall(ctx, event, handler.HandleEvent); err != nil {
		n.logger.Warn("notify handler failed", "job_id", event.JobID, "error", err)
	}
}

func (n *Notifier) safeCall(
	ctx context.Context,
	event *JobCreatedEvent,
	fn func(context.Context, *JobCreatedEvent) error,
) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, event)
}
