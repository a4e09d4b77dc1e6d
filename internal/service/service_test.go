package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

var (
	sales  = domain.Actor{ID: "u-sales", Role: domain.RoleSales}
	ca     = domain.Actor{ID: "u-ca", Role: domain.RoleCareerAssociate}
	lead   = domain.Actor{ID: "u-lead", Role: domain.RoleCATeamLead}
	client = domain.Actor{ID: "u-client", Role: domain.RoleClient}
	exec   = domain.Actor{ID: "u-coo", Role: domain.RoleCOO}
)

type recordingSender struct {
	mu     sync.Mutex
	err    error
	emails []notification.Email
}

func (s *recordingSender) Send(_ context.Context, email notification.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.emails = append(s.emails, email)
	return nil
}

type harness struct {
	feed     events.Feed
	store    *memstore.Store
	blobs    *blob.Memory
	sender   *recordingSender
	notifier *NotificationService
	tickets  *TicketService
	engine   *workflow.Engine
	board    *Board
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		feed:   events.NewInMemoryFeed(nil),
		blobs:  blob.NewMemory("http://files.test"),
		sender: &recordingSender{},
	}
	h.store = memstore.New(memstore.WithFeed(h.feed))
	for _, a := range []domain.Actor{sales, ca, lead, client, exec} {
		h.store.PutUser(domain.User{ID: a.ID, Name: strings.TrimPrefix(a.ID, "u-"), Role: a.Role})
	}
	h.store.PutClient(domain.Client{
		ID:                       "client-1",
		Name:                     "Jane",
		Email:                    "jane@example.com",
		CareerAssociateID:        ca.ID,
		CareerAssociateManagerID: lead.ID,
	})

	h.notifier = NewNotificationService(NotificationDependencies{
		Directory: h.store.Directory(),
		Sender:    h.sender,
		PortalURL: "https://portal.example.com/",
	})
	h.tickets = NewTicketService(TicketDependencies{
		Store:    h.store,
		Blobs:    h.blobs,
		Notifier: h.notifier,
		Clock:    func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	h.engine = workflow.NewEngine(workflow.EngineDependencies{
		Store:    h.store,
		Blobs:    h.blobs,
		Notifier: h.notifier,
	})
	h.board = NewBoard(h.store, h.feed, nil)
	require.NoError(t, h.board.Start(context.Background()))
	return h
}

func (h *harness) create(t *testing.T, assignees ...string) *TicketCreated {
	t.Helper()
	out, err := h.tickets.CreateTicket(context.Background(), sales, TicketCreateInput{
		Type:        domain.TicketTypeVolumeShortfall,
		Priority:    domain.TicketPriorityHigh,
		ClientID:    "client-1",
		Title:       "Fewer applications this week",
		AssigneeIDs: append([]string{client.ID}, assignees...),
	})
	require.NoError(t, err)
	return out
}

func TestCreateTicket(t *testing.T) {
	h := newHarness(t)

	out, err := h.tickets.CreateTicket(context.Background(), sales, TicketCreateInput{
		Type:        domain.TicketTypeDataMismatch,
		ClientID:    "client-1",
		Title:       "  Wrong job titles  ",
		AssigneeIDs: []string{ca.ID, ca.ID, " "},
		Files:       []workflow.Upload{{Name: "proof.png", Body: []byte("png")}},
	})
	require.NoError(t, err)

	tk := out.Ticket
	assert.Equal(t, domain.TicketStatusOpen, tk.Status)
	assert.Equal(t, domain.TicketPriorityMedium, tk.Priority)
	assert.Equal(t, "Wrong job titles", tk.Title)
	assert.Regexp(t, `^TCK-[0-9A-F]{8}$`, tk.ShortCode)
	assert.Equal(t, time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC), tk.DueDate)
	assert.Empty(t, out.Degraded)

	require.Len(t, out.Files, 1)
	assert.True(t, out.Files[0].ForInitialAttachment)
	assert.Nil(t, out.Files[0].CommentID)
	_, ok := h.blobs.Object(out.Files[0].StoragePath)
	assert.True(t, ok)

	var assigned []string
	for _, a := range out.Assignments {
		assigned = append(assigned, a.UserID)
	}
	assert.Equal(t, []string{sales.ID, ca.ID}, assigned)

	require.Len(t, h.sender.emails, 1)
	assert.Equal(t, "jane@example.com", h.sender.emails[0].To)
	assert.Contains(t, h.sender.emails[0].Subject, tk.ShortCode)
	assert.Contains(t, h.sender.emails[0].HTMLBody, "https://portal.example.com/tickets/"+tk.ID)
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t)
	cases := []TicketCreateInput{
		{Type: "billing", ClientID: "client-1", Title: "x"},
		{Type: domain.TicketTypeResumeUpdate, ClientID: "client-1", Title: "x", Priority: "urgent"},
		{Type: domain.TicketTypeResumeUpdate, Title: "x"},
		{Type: domain.TicketTypeResumeUpdate, ClientID: "client-1", Title: " "},
	}
	for _, in := range cases {
		_, err := h.tickets.CreateTicket(context.Background(), sales, in)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed), "%+v: %v", in, err)
	}
	assert.Empty(t, h.board.Visible(exec))
}

func TestCreateTicketUploadFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.blobs.FailWith(errors.New("bucket down"))

	_, err := h.tickets.CreateTicket(context.Background(), sales, TicketCreateInput{
		Type:     domain.TicketTypeVolumeShortfall,
		ClientID: "client-1",
		Title:    "x",
		Files:    []workflow.Upload{{Name: "a.txt", Body: []byte("a")}},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorageUnavailable))
	assert.Empty(t, h.board.Visible(exec))
}

func TestCreateTicketNotificationFailureDegrades(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("graph unavailable")

	out := h.create(t)
	assert.Equal(t, []string{"notification"}, out.Degraded)
}

func TestGetTicketHidesInternalCommentsFromClients(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, ca.ID)
	ctx := context.Background()

	internal := workflow.Submission{TicketID: created.Ticket.ID, Key: uuid.NewString(), Comment: "client is difficult", Internal: true,
		Files: []workflow.Upload{{Name: "notes.txt", Body: []byte("n")}}}
	_, err := h.engine.Submit(ctx, ca, workflow.CommentCommand{Submission: internal})
	require.NoError(t, err)
	public := workflow.Submission{TicketID: created.Ticket.ID, Key: uuid.NewString(), Comment: "we are on it"}
	_, err = h.engine.Submit(ctx, ca, workflow.CommentCommand{Submission: public})
	require.NoError(t, err)

	staffView, err := h.tickets.GetTicket(ctx, ca, created.Ticket.ID)
	require.NoError(t, err)
	assert.Len(t, staffView.Comments, 2)
	assert.Len(t, staffView.Files, 1)
	assert.Len(t, staffView.Assignees, 3)

	clientView, err := h.tickets.GetTicket(ctx, client, created.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, clientView.Comments, 1)
	assert.Equal(t, "we are on it", clientView.Comments[0].Content)
	assert.Empty(t, clientView.Files)
	assert.Nil(t, clientView.Escalations)
}

func TestGetTicketRequiresAssignment(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	_, err := h.tickets.GetTicket(context.Background(), lead, created.Ticket.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	_, err = h.tickets.GetTicket(context.Background(), exec, created.Ticket.ID)
	assert.NoError(t, err)

	_, err = h.tickets.GetTicket(context.Background(), exec, uuid.NewString())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestBoardFollowsChanges(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	assert.Len(t, h.board.Visible(exec), 1)
	assert.Len(t, h.board.Visible(client), 1)
	assert.Empty(t, h.board.Visible(ca))

	_, err := h.engine.Submit(context.Background(), sales, workflow.ForwardCommand{
		Submission:  workflow.Submission{TicketID: created.Ticket.ID, Key: uuid.NewString()},
		AssigneeIDs: []string{ca.ID},
	})
	// sales is assigned but may not forward
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	_, err = h.engine.Submit(context.Background(), exec, workflow.ForwardCommand{
		Submission:  workflow.Submission{TicketID: created.Ticket.ID, Key: uuid.NewString()},
		AssigneeIDs: []string{ca.ID},
	})
	require.NoError(t, err)

	mine := h.board.Visible(ca)
	require.Len(t, mine, 1)
	assert.Equal(t, domain.TicketStatusForwarded, mine[0].Ticket.Status)
	names := make([]string, 0, len(mine[0].Assignees))
	for _, a := range mine[0].Assignees {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, []string{"sales", "client", "ca"}, names)

	assert.Empty(t, h.board.Visible(ca, domain.TicketStatusOpen))
	assert.Len(t, h.board.Visible(ca, domain.TicketStatusForwarded), 1)
}

func TestNotifyClientWithoutEmailFails(t *testing.T) {
	h := newHarness(t)
	h.store.PutClient(domain.Client{ID: "client-2", Name: "No Mail"})

	err := h.notifier.NotifyClient(context.Background(), domain.Ticket{ID: "t", ClientID: "client-2"}, notification.NoticeTicketClosed)
	assert.Error(t, err)

	err = h.notifier.NotifyClient(context.Background(), domain.Ticket{ID: "t", ClientID: "missing"}, notification.NoticeTicketClosed)
	assert.Error(t, err)
	assert.Empty(t, h.sender.emails)
}
