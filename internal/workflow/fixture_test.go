package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/idempotency"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

var (
	ceo         = domain.Actor{ID: "u-ceo", Role: domain.RoleCEO}
	accountMgr  = domain.Actor{ID: "u-am", Role: domain.RoleAccountManager}
	caLead      = domain.Actor{ID: "u-catl", Role: domain.RoleCATeamLead}
	careerAssoc = domain.Actor{ID: "u-ca", Role: domain.RoleCareerAssociate}
	scraper     = domain.Actor{ID: "u-scraper", Role: domain.RoleScrapingTeam}
	caManager   = domain.Actor{ID: "u-mgr", Role: domain.RoleCATeamLead}
	resumeHead  = domain.Actor{ID: "u-rth", Role: domain.RoleResumeTeamHead}
	resumeMbr   = domain.Actor{ID: "u-rtm", Role: domain.RoleResumeTeamMember}
	clientUser  = domain.Actor{ID: "u-client", Role: domain.RoleClient}
)

const (
	clientID            = "client-1"
	selfManagedClientID = "client-self"
)

type fakeNotifier struct {
	mu      sync.Mutex
	err     error
	notices []notification.Notice
}

func (n *fakeNotifier) NotifyClient(_ context.Context, _ domain.Ticket, notice notification.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *fakeNotifier) sent() []notification.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Notice(nil), n.notices...)
}

type fixture struct {
	store    *memstore.Store
	blobs    *blob.Memory
	notifier *fakeNotifier
	ledger   *idempotency.MemoryLedger
	metrics  *observability.Metrics
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	f := &fixture{
		store:    memstore.New(memstore.WithClock(now)),
		blobs:    blob.NewMemory("http://files.test"),
		notifier: &fakeNotifier{},
		ledger:   idempotency.NewMemoryLedger(time.Hour),
		metrics:  observability.NewMetrics(),
	}
	for _, a := range []domain.Actor{ceo, accountMgr, caLead, careerAssoc, scraper, caManager, resumeHead, resumeMbr, clientUser} {
		f.store.PutUser(domain.User{ID: a.ID, Name: a.ID, Email: a.ID + "@example.com", Role: a.Role})
	}
	f.store.PutClient(domain.Client{
		ID:                       clientID,
		Name:                     "Jane",
		Email:                    "jane@example.com",
		CareerAssociateID:        careerAssoc.ID,
		CareerAssociateManagerID: caManager.ID,
	})
	f.store.PutClient(domain.Client{
		ID:                       selfManagedClientID,
		Name:                     "Sam",
		Email:                    "sam@example.com",
		CareerAssociateID:        careerAssoc.ID,
		CareerAssociateManagerID: careerAssoc.ID,
	})

	f.engine = NewEngine(EngineDependencies{
		Store:    f.store,
		Blobs:    f.blobs,
		Notifier: f.notifier,
		Ledger:   f.ledger,
		Metrics:  f.metrics,
		Clock:    now,
	})
	return f
}

// ticket seeds a ticket of the given type and status for clientID, assigned to
// the given actors.
func (f *fixture) ticket(t *testing.T, typ domain.TicketType, status domain.TicketStatus, client string, assigned ...domain.Actor) domain.Ticket {
	t.Helper()
	tk := domain.Ticket{
		ID:        uuid.NewString(),
		Type:      typ,
		Status:    status,
		Priority:  domain.TicketPriorityMedium,
		ClientID:  client,
		CreatedBy: clientUser.ID,
		Title:     "ticket",
		Metadata:  map[string]string{},
	}
	f.store.PutTicket(tk)
	for _, a := range assigned {
		require.NoError(t, f.store.Assignments().Upsert(context.Background(),
			&domain.Assignment{TicketID: tk.ID, UserID: a.ID, AssignedBy: ceo.ID}))
	}
	return tk
}

func (f *fixture) submit(actor domain.Actor, cmd Command) (*Outcome, error) {
	return f.engine.Submit(context.Background(), actor, cmd)
}

func (f *fixture) reload(t *testing.T, id string) domain.Ticket {
	t.Helper()
	tk, err := f.store.Tickets().GetByID(context.Background(), id)
	require.NoError(t, err)
	return *tk
}

func (f *fixture) comments(t *testing.T, id string) []domain.Comment {
	t.Helper()
	out, err := f.store.Comments().ListByTicket(context.Background(), id)
	require.NoError(t, err)
	return out
}

func (f *fixture) files(t *testing.T, id string) []domain.FileAttachment {
	t.Helper()
	out, err := f.store.Files().ListByTicket(context.Background(), id)
	require.NoError(t, err)
	return out
}

func (f *fixture) assignees(t *testing.T, id string) []string {
	t.Helper()
	out, err := f.store.Assignments().ListByTicket(context.Background(), id)
	require.NoError(t, err)
	ids := make([]string, 0, len(out))
	for _, a := range out {
		ids = append(ids, a.UserID)
	}
	return ids
}

func (f *fixture) escalations(t *testing.T, id string) []domain.Escalation {
	t.Helper()
	out, err := f.store.Escalations().ListByTicket(context.Background(), id)
	require.NoError(t, err)
	return out
}

func sub(ticketID, comment string) Submission {
	return Submission{TicketID: ticketID, Key: uuid.NewString(), Comment: comment}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T: %v", err, err)
	require.Equal(t, code, de.Code, de.Message)
}
