package dto

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/workflow"
)

// FilePayload is an inline upload; Data is standard base64.
type FilePayload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// Decode turns the payload into a workflow upload.
func (f FilePayload) Decode() (workflow.Upload, error) {
	body, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return workflow.Upload{}, fmt.Errorf("file %q: invalid base64: %w", f.Name, err)
	}
	return workflow.Upload{Name: f.Name, ContentType: f.ContentType, Body: body}, nil
}

// DecodeFiles decodes every payload, stopping at the first bad one.
func DecodeFiles(files []FilePayload) ([]workflow.Upload, error) {
	out := make([]workflow.Upload, 0, len(files))
	for _, f := range files {
		up, err := f.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Type        domain.TicketType     `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	ClientID    string                `json:"client_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Metadata    map[string]string     `json:"metadata"`
	AssigneeIDs []string              `json:"assignee_ids"`
	Files       []FilePayload         `json:"files"`
}

// EscalationPayload requests the escalation side channel on close.
type EscalationPayload struct {
	SubjectUserID string `json:"subject_user_id"`
	Reason        string `json:"reason"`
}

// ActionRequest is the body of POST /tickets/:id/actions/:action. Key may also
// be sent as the Idempotency-Key header.
type ActionRequest struct {
	Key         string             `json:"idempotency_key"`
	Comment     string             `json:"comment"`
	Internal    bool               `json:"internal"`
	Files       []FilePayload      `json:"files"`
	AssigneeIDs []string           `json:"assignee_ids"`
	MemberID    string             `json:"member_id"`
	Escalation  *EscalationPayload `json:"escalation"`
}

// TicketResponse is a ticket as rendered to API callers.
type TicketResponse struct {
	ID                       string                `json:"id"`
	ShortCode                string                `json:"short_code"`
	Type                     domain.TicketType     `json:"type"`
	Status                   domain.TicketStatus   `json:"status"`
	Priority                 domain.TicketPriority `json:"priority"`
	ClientID                 string                `json:"client_id"`
	CreatedBy                string                `json:"created_by"`
	Title                    string                `json:"title"`
	Description              string                `json:"description"`
	DueDate                  time.Time             `json:"due_date"`
	EscalationLevel          int                   `json:"escalation_level"`
	Metadata                 map[string]string     `json:"metadata"`
	RequiredManagerAttention bool                  `json:"required_manager_attention"`
	CAConfirmed              bool                  `json:"ca_confirmed"`
	CATeamLeadConfirmed      bool                  `json:"ca_team_lead_confirmed"`
	CreatedAt                time.Time             `json:"created_at"`
	UpdatedAt                time.Time             `json:"updated_at"`
	Assignees                []AssigneeResponse    `json:"assignees,omitempty"`
}

// AssigneeResponse names one assigned user.
type AssigneeResponse struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Role   domain.Role `json:"role"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID           string              `json:"id"`
	AuthorID     string              `json:"author_id"`
	Content      string              `json:"content"`
	IsInternal   bool                `json:"is_internal"`
	ShowToClient bool                `json:"show_to_client"`
	StatusAtTime domain.TicketStatus `json:"status_at_time"`
	CreatedAt    time.Time           `json:"created_at"`
}

// FileResponse is attachment metadata with its public URL.
type FileResponse struct {
	ID                   string    `json:"id"`
	CommentID            *string   `json:"comment_id"`
	Name                 string    `json:"name"`
	ContentType          string    `json:"content_type"`
	SizeBytes            int64     `json:"size_bytes"`
	ForInitialAttachment bool      `json:"for_initial_attachment"`
	URL                  string    `json:"url"`
	UploadedAt           time.Time `json:"uploaded_at"`
}

// EscalationResponse is an escalation record.
type EscalationResponse struct {
	ID            string    `json:"id"`
	EscalatedBy   string    `json:"escalated_by"`
	SubjectUserID string    `json:"subject_user_id"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketResponse
	Comments    []CommentResponse    `json:"comments"`
	Files       []FileResponse       `json:"files"`
	Escalations []EscalationResponse `json:"escalations,omitempty"`
}

// CreateTicketResponse is returned by POST /tickets.
type CreateTicketResponse struct {
	Ticket   TicketResponse `json:"ticket"`
	Files    []FileResponse `json:"files"`
	Degraded []string       `json:"degraded,omitempty"`
}

// OutcomeResponse reports what an action wrote.
type OutcomeResponse struct {
	Ticket         TicketResponse      `json:"ticket"`
	Comment        *CommentResponse    `json:"comment,omitempty"`
	Files          []FileResponse      `json:"files,omitempty"`
	Assigned       []string            `json:"assigned,omitempty"`
	Escalation     *EscalationResponse `json:"escalation,omitempty"`
	Duplicate      bool                `json:"duplicate"`
	Replayed       bool                `json:"replayed"`
	AutoReassigned bool                `json:"auto_reassigned"`
	Degraded       []string            `json:"degraded,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// UserResponse is the caller's profile.
type UserResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      domain.Role `json:"role"`
	Executive bool        `json:"executive"`
}
