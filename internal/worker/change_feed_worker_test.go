package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
)

func TestNewChangeFeedWorkerDisabledWithoutDatabase(t *testing.T) {
	feed := events.NewInMemoryFeed(zap.NewNop())

	w := NewChangeFeedWorker(&persistence.Postgres{}, config.PostgresConfig{ListenChanges: true}, feed, zap.NewNop())
	assert.Nil(t, w)

	// nil workers are inert
	w.Start(testContext(t))
	w.Wait()
}

// testContext stands in for testing.T.Context (Go 1.24+): it is cancelled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
