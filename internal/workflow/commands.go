package workflow

import (
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Upload is one file attached to a submission.
type Upload struct {
	Name        string
	ContentType string
	Body        []byte
}

// Submission is the payload every command shares. Key is the caller-generated
// idempotency key; it becomes the comment id and seeds the file ids.
type Submission struct {
	TicketID string
	Key      string
	Comment  string
	Internal bool
	Files    []Upload
}

func (s Submission) submission() Submission { return s }

// HasComment reports whether the comment has non-blank content.
func (s Submission) HasComment() bool { return strings.TrimSpace(s.Comment) != "" }

func (s Submission) validate() error {
	if strings.TrimSpace(s.TicketID) == "" {
		return apperrors.NewValidationError("ticket id is required", nil)
	}
	if _, err := uuid.Parse(s.Key); err != nil {
		return apperrors.NewValidationError("idempotency key must be a UUID", map[string]any{"key": s.Key})
	}
	for i, f := range s.Files {
		if strings.TrimSpace(f.Name) == "" {
			return apperrors.NewValidationError("file name is required", map[string]any{"index": i})
		}
	}
	return nil
}

// Command is the tagged union of workflow requests. Each variant carries only
// the fields its action needs and validates them before lookup.
type Command interface {
	Action() Action
	Validate() error
	submission() Submission
}

// SubmissionOf exposes the shared payload of cmd.
func SubmissionOf(cmd Command) Submission { return cmd.submission() }

// CommentCommand adds a comment or attachments without changing status.
type CommentCommand struct{ Submission }

func (CommentCommand) Action() Action { return ActionComment }
func (c CommentCommand) Validate() error { return c.validate() }

// ForwardCommand routes a complaint ticket to one or more staff members.
type ForwardCommand struct {
	Submission
	AssigneeIDs []string
}

func (ForwardCommand) Action() Action { return ActionForward }
func (c ForwardCommand) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if len(nonBlank(c.AssigneeIDs)) == 0 {
		return apperrors.NewPreconditionFailed("forward requires at least one assignee", nil)
	}
	return nil
}

// ReplyCommand answers a forwarded volume shortfall ticket.
type ReplyCommand struct{ Submission }

func (ReplyCommand) Action() Action { return ActionReply }
func (c ReplyCommand) Validate() error { return c.validate() }

// EscalateCommand escalates an open complaint ticket. The comment is the reason.
type EscalateCommand struct{ Submission }

func (EscalateCommand) Action() Action { return ActionEscalate }
func (c EscalateCommand) Validate() error { return c.validate() }

// EscalationRequest raises a complaint against a staff member while closing.
// An empty SubjectUserID defaults to the client's career associate.
type EscalationRequest struct {
	SubjectUserID string
	Reason        string
}

// CloseCommand closes a complaint ticket, optionally raising an escalation.
type CloseCommand struct {
	Submission
	Escalation *EscalationRequest
}

func (CloseCommand) Action() Action { return ActionClose }
func (c CloseCommand) Validate() error { return c.validate() }

// ConfirmResolvedCommand is the client accepting a closed ticket as resolved.
type ConfirmResolvedCommand struct{ Submission }

func (ConfirmResolvedCommand) Action() Action { return ActionConfirmResolved }
func (c ConfirmResolvedCommand) Validate() error { return c.validate() }

// RequestManagerCommand is the client asking for a manager on a closed ticket.
type RequestManagerCommand struct{ Submission }

func (RequestManagerCommand) Action() Action { return ActionRequestManager }
func (c RequestManagerCommand) Validate() error { return c.validate() }

// ResolveCommand settles a ticket awaiting manager attention.
type ResolveCommand struct{ Submission }

func (ResolveCommand) Action() Action { return ActionResolve }
func (c ResolveCommand) Validate() error { return c.validate() }

// RouteToMemberCommand hands a resume ticket to one resume team member. An
// empty MemberID re-routes a reopened ticket to the member already assigned.
type RouteToMemberCommand struct {
	Submission
	MemberID string
}

func (RouteToMemberCommand) Action() Action { return ActionRouteToMember }
func (c RouteToMemberCommand) Validate() error { return c.validate() }

// SubmitResumeCommand hands the updated resume back to the team head.
type SubmitResumeCommand struct{ Submission }

func (SubmitResumeCommand) Action() Action { return ActionSubmitResume }
func (c SubmitResumeCommand) Validate() error { return c.validate() }

// ForwardToClientCommand sends the updated resume to the client for review.
type ForwardToClientCommand struct{ Submission }

func (ForwardToClientCommand) Action() Action { return ActionForwardToClient }
func (c ForwardToClientCommand) Validate() error { return c.validate() }

// ApproveResumeCommand is the client accepting the resume.
type ApproveResumeCommand struct{ Submission }

func (ApproveResumeCommand) Action() Action { return ActionApproveResume }
func (c ApproveResumeCommand) Validate() error { return c.validate() }

// RequestChangesCommand is the client sending the resume back for rework.
type RequestChangesCommand struct{ Submission }

func (RequestChangesCommand) Action() Action { return ActionRequestChanges }
func (c RequestChangesCommand) Validate() error { return c.validate() }

// ConfirmApplyingCommand records that the career associate applies with the new resume.
type ConfirmApplyingCommand struct{ Submission }

func (ConfirmApplyingCommand) Action() Action { return ActionConfirmApplying }
func (c ConfirmApplyingCommand) Validate() error { return c.validate() }

// AcknowledgeApplyingCommand is the CA team lead acknowledging that confirmation.
type AcknowledgeApplyingCommand struct{ Submission }

func (AcknowledgeApplyingCommand) Action() Action { return ActionAcknowledgeApplying }
func (c AcknowledgeApplyingCommand) Validate() error { return c.validate() }

// Args holds the variant-specific fields a transport may supply.
type Args struct {
	AssigneeIDs []string
	MemberID    string
	Escalation  *EscalationRequest
}

// NewCommand builds the variant for action, dropping fields it does not use.
func NewCommand(action Action, sub Submission, args Args) (Command, error) {
	switch action {
	case ActionComment:
		return CommentCommand{sub}, nil
	case ActionForward:
		return ForwardCommand{Submission: sub, AssigneeIDs: nonBlank(args.AssigneeIDs)}, nil
	case ActionReply:
		return ReplyCommand{sub}, nil
	case ActionEscalate:
		return EscalateCommand{sub}, nil
	case ActionClose:
		return CloseCommand{Submission: sub, Escalation: args.Escalation}, nil
	case ActionConfirmResolved:
		return ConfirmResolvedCommand{sub}, nil
	case ActionRequestManager:
		return RequestManagerCommand{sub}, nil
	case ActionResolve:
		return ResolveCommand{sub}, nil
	case ActionRouteToMember:
		return RouteToMemberCommand{Submission: sub, MemberID: strings.TrimSpace(args.MemberID)}, nil
	case ActionSubmitResume:
		return SubmitResumeCommand{sub}, nil
	case ActionForwardToClient:
		return ForwardToClientCommand{sub}, nil
	case ActionApproveResume:
		return ApproveResumeCommand{sub}, nil
	case ActionRequestChanges:
		return RequestChangesCommand{sub}, nil
	case ActionConfirmApplying:
		return ConfirmApplyingCommand{sub}, nil
	case ActionAcknowledgeApplying:
		return AcknowledgeApplyingCommand{sub}, nil
	}
	return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": action})
}

// checkRequirements enforces the rule's payload preconditions.
func checkRequirements(rule Rule, sub Submission) error {
	if rule.Needs(RequireComment) && !sub.HasComment() {
		return apperrors.NewPreconditionFailed(
			string(rule.Action)+" requires a non-empty comment", map[string]any{"action": rule.Action})
	}
	if rule.Needs(RequireCommentOrFile) && !sub.HasComment() && len(sub.Files) == 0 {
		return apperrors.NewPreconditionFailed(
			"a comment or an attachment is required", map[string]any{"action": rule.Action})
	}
	if rule.Needs(RequireOneFile) && len(sub.Files) != 1 {
		return apperrors.NewPreconditionFailed(
			string(rule.Action)+" requires exactly one attached file",
			map[string]any{"action": rule.Action, "files": len(sub.Files)})
	}
	return nil
}

// assignTargets returns the user ids a command selects for assignment.
func assignTargets(cmd Command) []string {
	switch c := cmd.(type) {
	case ForwardCommand:
		return c.AssigneeIDs
	case RouteToMemberCommand:
		return []string{c.MemberID}
	}
	return nil
}

func nonBlank(ids []string) []string {
	var out []string
	seen := map[string]bool{}
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
