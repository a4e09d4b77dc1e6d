package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
)

// ChangeFeedWorker relays Postgres change notifications into the in-process
// feed so subscribers such as the board see writes from every instance.
type ChangeFeedWorker struct {
	listener *persistence.ChangeListener
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewChangeFeedWorker returns nil when there is nothing to listen to: no
// database, or listening switched off. The in-memory store publishes its own
// changes directly.
func NewChangeFeedWorker(pg *persistence.Postgres, cfg config.PostgresConfig, feed events.Feed, logger *zap.Logger) *ChangeFeedWorker {
	if !pg.Enabled() || !cfg.ListenChanges {
		return nil
	}
	return &ChangeFeedWorker{
		listener: persistence.NewChangeListener(pg.Pool, feed, logger),
		logger:   logger,
	}
}

// Start runs the listener until ctx is cancelled. Safe on a nil worker.
func (w *ChangeFeedWorker) Start(ctx context.Context) {
	if w == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("change feed worker started")
		w.listener.Run(ctx)
		w.logger.Info("change feed worker stopped")
	}()
}

// Wait blocks until a started worker has returned.
func (w *ChangeFeedWorker) Wait() {
	if w == nil {
		return
	}
	w.wg.Wait()
}
