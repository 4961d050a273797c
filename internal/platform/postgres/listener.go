package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/litevault/litevault-api/internal/events"
)

// Deliverer receives events published by other processes.
// *events.Notifier implements it.
type Deliverer interface {
	Deliver(ctx context.Context, event *events.JobCreatedEvent)
}

// Listener holds a dedicated connection in LISTEN mode and hands every
// notification on its channel to a Deliverer. Lost connections are
// re-established after ReconnectDelay; each successful (re)connect also
// delivers an empty event so the worker rescans anything it may have missed.
type Listener struct {
	url            string
	channel        string
	target         Deliverer
	logger         *slog.Logger
	ReconnectDelay time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewListener creates a Listener. It does nothing until Start is called.
func NewListener(url, channel string, target Deliverer, logger *slog.Logger) *Listener {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		url:            url,
		channel:        channel,
		target:         target,
		logger:         logger.With("component", "pg_listener", "channel", channel),
		ReconnectDelay: 5 * time.Second,
	}
}

// Start launches the listen loop in the background.
func (l *Listener) Start() {
	l.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		l.cancel = cancel
		l.done = make(chan struct{})
		go l.run(ctx)
	})
}

// Stop terminates the listen loop and waits for it to exit.
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("listener connection lost, reconnecting",
			"error", err,
			"delay", l.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.ReconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	l.logger.Info("listening for job notifications")
	l.target.Deliver(ctx, &events.JobCreatedEvent{})

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}

		event, err := decodeEvent(n.Payload)
		if err != nil {
			l.logger.Warn("ignoring malformed notification", "error", err)
			event = &events.JobCreatedEvent{}
		}
		l.target.Deliver(ctx, event)
	}
}
