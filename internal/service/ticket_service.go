package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// TicketService creates tickets and serves single-ticket reads. Transitions go
// through workflow.Engine.
type TicketService struct {
	store    repository.Store
	blobs    blob.Storage
	notifier workflow.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// TicketDependencies bundles the collaborators of TicketService.
type TicketDependencies struct {
	Store    repository.Store
	Blobs    blob.Storage
	Notifier workflow.Notifier
	Logger   *zap.Logger
	Clock    func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Type        domain.TicketType
	Priority    domain.TicketPriority
	ClientID    string
	Title       string
	Description string
	Metadata    map[string]string
	AssigneeIDs []string
	Files       []workflow.Upload
}

// TicketCreated is the result of CreateTicket.
type TicketCreated struct {
	Ticket      domain.Ticket
	Files       []domain.FileAttachment
	Assignments []domain.Assignment
	Degraded    []string
}

// TicketDetail is one ticket with its thread as the actor may see it.
type TicketDetail struct {
	Ticket      domain.Ticket
	Comments    []domain.Comment
	Files       []domain.FileAttachment
	Assignees   []workflow.Assignee
	Escalations []domain.Escalation
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		store:    deps.Store,
		blobs:    deps.Blobs,
		notifier: deps.Notifier,
		logger:   logger,
		now:      now,
	}
}

// CreateTicket opens a ticket, stores its initial attachments and assigns the
// creator plus any requested assignees.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*TicketCreated, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	now := s.now()
	ticket := domain.Ticket{
		ID:          uuid.NewString(),
		Type:        input.Type,
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		ClientID:    strings.TrimSpace(input.ClientID),
		CreatedBy:   actor.ID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		ShortCode:   generateShortCode(),
		DueDate:     now.Add(input.Priority.SLA()),
		Metadata:    input.Metadata,
	}
	if ticket.Metadata == nil {
		ticket.Metadata = map[string]string{}
	}

	files := make([]domain.FileAttachment, 0, len(input.Files))
	for i, up := range input.Files {
		contentType := up.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, domain.FileAttachment{
			ID:                   workflow.FileID(ticket.ID, i),
			TicketID:             ticket.ID,
			UploaderID:           actor.ID,
			StoragePath:          blob.ObjectPath(ticket.ID, "initial", i, up.Name),
			OriginalName:         up.Name,
			ContentType:          contentType,
			SizeBytes:            int64(len(up.Body)),
			ForInitialAttachment: true,
			UploadedAt:           now,
		})
	}
	for i, up := range input.Files {
		if err := s.blobs.Upload(ctx, files[i].StoragePath, files[i].ContentType, up.Body); err != nil {
			return nil, apperrors.NewStorageUnavailable(err, map[string]any{"step": "upload", "file": up.Name})
		}
	}

	var assignments []domain.Assignment
	for _, userID := range uniqueIDs(append([]string{actor.ID}, input.AssigneeIDs...)) {
		assignments = append(assignments, domain.Assignment{
			TicketID:   ticket.ID,
			UserID:     userID,
			AssignedBy: actor.ID,
			CreatedAt:  now,
		})
	}

	err := s.store.Atomic(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Tickets().Create(ctx, &ticket); err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		for i := range files {
			if _, err := tx.Files().Insert(ctx, &files[i]); err != nil {
				return fmt.Errorf("insert file: %w", err)
			}
		}
		for i := range assignments {
			if err := tx.Assignments().Upsert(ctx, &assignments[i]); err != nil {
				return fmt.Errorf("assign %s: %w", assignments[i].UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStorageUnavailable(err, map[string]any{"step": "create"})
	}

	out := &TicketCreated{Ticket: ticket, Files: files, Assignments: assignments}
	if s.notifier != nil {
		if err := s.notifier.NotifyClient(ctx, ticket, notification.NoticeTicketCreated); err != nil {
			s.logger.Warn("ticket created notification failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
			out.Degraded = append(out.Degraded, "notification")
		}
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("type", string(ticket.Type)),
		zap.String("short_code", ticket.ShortCode),
		zap.Int("files", len(files)))
	return out, nil
}

// GetTicket returns the ticket with its thread. Non-executives must be assigned;
// clients never see internal comments or their files.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*TicketDetail, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	assignments, err := s.store.Assignments().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !workflow.CanAct(actor, *ticket, assignments) {
		return nil, apperrors.NewPermissionDenied("not assigned to this ticket", map[string]any{"ticket_id": ticket.ID})
	}

	comments, err := s.store.Comments().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	files, err := s.store.Files().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	users, err := s.store.Directory().ListUsers(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	detail := &TicketDetail{
		Ticket:    *ticket,
		Assignees: workflow.AssigneesByTicket(assignments, users)[ticket.ID],
	}
	if actor.Role == domain.RoleClient {
		detail.Comments, detail.Files = clientView(comments, files)
		return detail, nil
	}

	detail.Comments, detail.Files = comments, files
	detail.Escalations, err = s.store.Escalations().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return detail, nil
}

func clientView(comments []domain.Comment, files []domain.FileAttachment) ([]domain.Comment, []domain.FileAttachment) {
	hidden := map[string]bool{}
	visible := make([]domain.Comment, 0, len(comments))
	for _, c := range comments {
		if c.IsInternal {
			hidden[c.ID] = true
			continue
		}
		visible = append(visible, c)
	}
	visibleFiles := make([]domain.FileAttachment, 0, len(files))
	for _, f := range files {
		if f.CommentID != nil && hidden[*f.CommentID] {
			continue
		}
		visibleFiles = append(visibleFiles, f)
	}
	return visible, visibleFiles
}

func validateCreate(input *TicketCreateInput) error {
	if !input.Type.Valid() {
		return apperrors.NewValidationError("unknown ticket type", map[string]any{"type": input.Type})
	}
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if !input.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if strings.TrimSpace(input.ClientID) == "" {
		return apperrors.NewValidationError("client_id is required", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return apperrors.NewValidationError("title is required", nil)
	}
	for i, f := range input.Files {
		if strings.TrimSpace(f.Name) == "" {
			return apperrors.NewValidationError("file name is required", map[string]any{"index": i})
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func generateShortCode() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
