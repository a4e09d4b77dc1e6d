package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ChangeHandler handles a published change event.
type ChangeHandler func(context.Context, ChangeEvent) error

// Feed allows change publication and per-table subscription.
type Feed interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(table Table, handler ChangeHandler)
}

// inMemoryFeed is a simple synchronous fan-out.
type inMemoryFeed struct {
	mu        sync.RWMutex
	listeners map[Table][]ChangeHandler
	logger    *zap.Logger
}

// NewInMemoryFeed creates a feed instance.
func NewInMemoryFeed(logger *zap.Logger) Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryFeed{
		listeners: make(map[Table][]ChangeHandler),
		logger:    logger,
	}
}

// Publish synchronously invokes handlers for the event's table.
func (f *inMemoryFeed) Publish(ctx context.Context, event ChangeEvent) error {
	f.mu.RLock()
	handlers := append([]ChangeHandler{}, f.listeners[event.Table]...)
	f.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			// one failing consumer must not starve the others
			f.logger.Warn("change handler failed",
				zap.String("table", string(event.Table)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribe registers a handler for the given table.
func (f *inMemoryFeed) Subscribe(table Table, handler ChangeHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[table] = append(f.listeners[table], handler)
}

// SubscribeAll registers handler on every workflow table.
func SubscribeAll(feed Feed, handler ChangeHandler) {
	for _, table := range AllTables {
		feed.Subscribe(table, handler)
	}
}
