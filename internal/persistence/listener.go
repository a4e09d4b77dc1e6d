package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/events"
)

// ChangeChannel is the NOTIFY channel written by the notify_ticket_change trigger.
const ChangeChannel = "ticket_changes"

// ChangeListener forwards Postgres notifications to a change feed.
type ChangeListener struct {
	pool    *pgxpool.Pool
	feed    events.Feed
	logger  *zap.Logger
	backoff time.Duration
}

// NewChangeListener builds a listener over the pool.
func NewChangeListener(pool *pgxpool.Pool, feed events.Feed, logger *zap.Logger) *ChangeListener {
	return &ChangeListener{pool: pool, feed: feed, logger: logger, backoff: time.Second}
}

// Run blocks until ctx is cancelled, reconnecting after connection loss.
func (l *ChangeListener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("change listener disconnected", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

func (l *ChangeListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}
	l.logger.Info("listening for ticket changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := DecodeChange(n.Payload)
		if err != nil {
			l.logger.Warn("dropping malformed change payload", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		_ = l.feed.Publish(ctx, event)
	}
}

// DecodeChange parses a trigger payload.
func DecodeChange(payload string) (events.ChangeEvent, error) {
	var event events.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return events.ChangeEvent{}, err
	}
	if event.Table == "" {
		return events.ChangeEvent{}, errors.New("change payload without table")
	}
	return event, nil
}
