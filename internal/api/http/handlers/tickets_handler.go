package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// IdempotencyKeyHeader carries the submission key when the body omits it.
const IdempotencyKeyHeader = "Idempotency-Key"

// TicketsHandler serves the ticket endpoints.
type TicketsHandler struct {
	tickets *service.TicketService
	board   *service.Board
	engine  *workflow.Engine
	blobs   blob.Storage
}

// TicketsHandlerDependencies bundles the handler's collaborators.
type TicketsHandlerDependencies struct {
	Tickets *service.TicketService
	Board   *service.Board
	Engine  *workflow.Engine
	Blobs   blob.Storage
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(deps TicketsHandlerDependencies) *TicketsHandler {
	return &TicketsHandler{tickets: deps.Tickets, board: deps.Board, engine: deps.Engine, blobs: deps.Blobs}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	files, err := dto.DecodeFiles(req.Files)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	created, err := h.tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Type:        req.Type,
		Priority:    req.Priority,
		ClientID:    req.ClientID,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
		AssigneeIDs: req.AssigneeIDs,
		Files:       files,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CreateTicketResponse{
		Ticket:   ticketResponse(created.Ticket, nil),
		Files:    h.fileResponses(created.Files),
		Degraded: created.Degraded,
	}})
}

// ListTickets GET /tickets. Supports ?status=a,b&page=&page_size=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var statuses []domain.TicketStatus
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}

	rows := h.board.Visible(actor, statuses...)
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	start := (page - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}

	items := make([]dto.TicketResponse, 0, end-start)
	for _, row := range rows[start:end] {
		items = append(items, ticketResponse(row.Ticket, row.Assignees))
	}
	return c.JSON(fiber.Map{"data": items, "total": len(rows)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	detail, err := h.tickets.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}

	resp := dto.TicketDetailResponse{
		TicketResponse: ticketResponse(detail.Ticket, detail.Assignees),
		Comments:       make([]dto.CommentResponse, 0, len(detail.Comments)),
		Files:          h.fileResponses(detail.Files),
	}
	for _, cm := range detail.Comments {
		resp.Comments = append(resp.Comments, commentResponse(cm))
	}
	for _, e := range detail.Escalations {
		resp.Escalations = append(resp.Escalations, escalationResponse(e))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// SubmitAction POST /tickets/:id/actions/:action.
func (h *TicketsHandler) SubmitAction(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		key = strings.TrimSpace(c.Get(IdempotencyKeyHeader))
	}
	files, err := dto.DecodeFiles(req.Files)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}

	args := workflow.Args{AssigneeIDs: req.AssigneeIDs, MemberID: req.MemberID}
	if req.Escalation != nil {
		args.Escalation = &workflow.EscalationRequest{
			SubjectUserID: req.Escalation.SubjectUserID,
			Reason:        req.Escalation.Reason,
		}
	}
	cmd, err := workflow.NewCommand(workflow.Action(c.Params("action")), workflow.Submission{
		TicketID: c.Params("id"),
		Key:      key,
		Comment:  req.Comment,
		Internal: req.Internal,
		Files:    files,
	}, args)
	if err != nil {
		return err
	}

	out, err := h.engine.Submit(c.UserContext(), actor, cmd)
	if err != nil {
		if out != nil && apperrors.IsCode(err, apperrors.CodePartialFailure) {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{
				"data": h.outcomeResponse(out),
				"error": fiber.Map{
					"code":    de.Code,
					"message": de.Message,
					"details": de.Details,
				},
			})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": h.outcomeResponse(out)})
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(t domain.Ticket, assignees []workflow.Assignee) dto.TicketResponse {
	resp := dto.TicketResponse{
		ID:                       t.ID,
		ShortCode:                t.ShortCode,
		Type:                     t.Type,
		Status:                   t.Status,
		Priority:                 t.Priority,
		ClientID:                 t.ClientID,
		CreatedBy:                t.CreatedBy,
		Title:                    t.Title,
		Description:              t.Description,
		DueDate:                  t.DueDate,
		EscalationLevel:          t.EscalationLevel,
		Metadata:                 t.Metadata,
		RequiredManagerAttention: t.RequiredManagerAttention,
		CAConfirmed:              t.CAConfirmed,
		CATeamLeadConfirmed:      t.CATeamLeadConfirmed,
		CreatedAt:                t.CreatedAt,
		UpdatedAt:                t.UpdatedAt,
	}
	for _, a := range assignees {
		resp.Assignees = append(resp.Assignees, dto.AssigneeResponse{UserID: a.UserID, Name: a.Name, Role: a.Role})
	}
	return resp
}

func commentResponse(cm domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:           cm.ID,
		AuthorID:     cm.AuthorID,
		Content:      cm.Content,
		IsInternal:   cm.IsInternal,
		ShowToClient: cm.ShowToClient,
		StatusAtTime: cm.StatusAtTime,
		CreatedAt:    cm.CreatedAt,
	}
}

func escalationResponse(e domain.Escalation) dto.EscalationResponse {
	return dto.EscalationResponse{
		ID:            e.ID,
		EscalatedBy:   e.EscalatedBy,
		SubjectUserID: e.SubjectUserID,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
}

func (h *TicketsHandler) fileResponses(files []domain.FileAttachment) []dto.FileResponse {
	resp := make([]dto.FileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, dto.FileResponse{
			ID:                   f.ID,
			CommentID:            f.CommentID,
			Name:                 f.OriginalName,
			ContentType:          f.ContentType,
			SizeBytes:            f.SizeBytes,
			ForInitialAttachment: f.ForInitialAttachment,
			URL:                  h.blobs.PublicURL(f.StoragePath),
			UploadedAt:           f.UploadedAt,
		})
	}
	return resp
}

func (h *TicketsHandler) outcomeResponse(out *workflow.Outcome) dto.OutcomeResponse {
	resp := dto.OutcomeResponse{
		Ticket:         ticketResponse(out.Ticket, nil),
		Files:          h.fileResponses(out.Files),
		Duplicate:      out.Duplicate,
		Replayed:       out.Replayed,
		AutoReassigned: out.AutoReassigned,
		Degraded:       out.Degraded,
		Warnings:       out.Warnings,
	}
	if out.Comment != nil {
		cm := commentResponse(*out.Comment)
		resp.Comment = &cm
	}
	for _, a := range out.Assignments {
		resp.Assigned = append(resp.Assigned, a.UserID)
	}
	if out.Escalation != nil {
		e := escalationResponse(*out.Escalation)
		resp.Escalation = &e
	}
	return resp
}
