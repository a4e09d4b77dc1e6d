package service

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
)

// BoardTicket is one row of an actor's ticket board.
type BoardTicket struct {
	Ticket    domain.Ticket
	Assignees []workflow.Assignee
}

type boardSnapshot struct {
	tickets     []domain.Ticket
	assignments []domain.Assignment
	users       []domain.User
}

// Board keeps the latest raw rows in memory and re-projects them per actor.
// Any change event triggers a full re-fetch. Refreshes run concurrently on the
// writers' goroutines; a snapshot is only swapped in if no refresh that started
// later has already landed.
type Board struct {
	store  repository.Store
	feed   events.Feed
	logger *zap.Logger

	started atomic.Uint64

	mu      sync.RWMutex
	snap    boardSnapshot
	applied uint64
}

// NewBoard builds a board. Call Start to load it and follow the feed.
func NewBoard(store repository.Store, feed events.Feed, logger *zap.Logger) *Board {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{store: store, feed: feed, logger: logger}
}

// Start loads the first snapshot and subscribes to every table on the feed.
func (b *Board) Start(ctx context.Context) error {
	if err := b.Refresh(ctx); err != nil {
		return err
	}
	if b.feed != nil {
		events.SubscribeAll(b.feed, b.onChange)
	}
	return nil
}

func (b *Board) onChange(ctx context.Context, ev events.ChangeEvent) error {
	b.logger.Debug("board refresh",
		zap.String("table", string(ev.Table)),
		zap.String("op", string(ev.Op)),
		zap.String("ticket_id", ev.TicketID))
	return b.Refresh(ctx)
}

// Refresh re-reads tickets, assignments and users. On error the previous
// snapshot stays in place.
func (b *Board) Refresh(ctx context.Context) error {
	gen := b.started.Add(1)

	tickets, err := b.store.Tickets().List(ctx, repository.TicketFilter{})
	if err != nil {
		return err
	}
	assignments, err := b.store.Assignments().ListAll(ctx)
	if err != nil {
		return err
	}
	users, err := b.store.Directory().ListUsers(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen < b.applied {
		b.logger.Debug("discarding stale board snapshot", zap.Uint64("generation", gen))
		return nil
	}
	b.snap = boardSnapshot{tickets: tickets, assignments: assignments, users: users}
	b.applied = gen
	return nil
}

// Visible returns the tickets actor may see, optionally narrowed to statuses.
func (b *Board) Visible(actor domain.Actor, statuses ...domain.TicketStatus) []BoardTicket {
	b.mu.RLock()
	snap := b.snap
	b.mu.RUnlock()

	assignees := workflow.AssigneesByTicket(snap.assignments, snap.users)
	want := make(map[domain.TicketStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	tickets := workflow.Project(actor, snap.tickets, snap.assignments)
	out := make([]BoardTicket, 0, len(tickets))
	for _, t := range tickets {
		if len(want) > 0 && !want[t.Status] {
			continue
		}
		out = append(out, BoardTicket{Ticket: t, Assignees: assignees[t.ID]})
	}
	return out
}
