package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Notifier sends a client-facing notice about ticket.
type Notifier interface {
	NotifyClient(ctx context.Context, ticket domain.Ticket, notice notification.Notice) error
}

// Plan is a validated transition with every row it will write precomputed.
type Plan struct {
	Actor       domain.Actor
	Rule        Rule
	Match       Match
	Before      domain.Ticket
	After       domain.Ticket
	Client      domain.Client
	Uploads     []Upload
	Files       []domain.FileAttachment
	Comment     *domain.Comment
	Assignments []domain.Assignment
	Escalation  *domain.Escalation
	Notice      notification.Notice

	// Record is written in the atomic unit and anchors retries of this key.
	Record *domain.SubmissionRecord

	// Replay marks a submission whose atomic unit already committed; only the
	// idempotent appends are re-run.
	Replay bool
}

// Outcome reports what a submission wrote.
type Outcome struct {
	Ticket         domain.Ticket
	Comment        *domain.Comment
	Files          []domain.FileAttachment
	Assignments    []domain.Assignment
	Escalation     *domain.Escalation
	Duplicate      bool
	Replayed       bool
	AutoReassigned bool
	Degraded       []string
	Warnings       []string
}

// Executor applies a plan in the fixed order: blobs and file rows, comment,
// ticket update (one atomic unit), assignments, escalation, notification.
type Executor struct {
	store    repository.Store
	blobs    blob.Storage
	notifier Notifier
	logger   *zap.Logger
}

// NewExecutor wires the collaborators. notifier may be nil.
func NewExecutor(store repository.Store, blobs blob.Storage, notifier Notifier, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: store, blobs: blobs, notifier: notifier, logger: logger}
}

// Apply runs plan. On PartialFailure the returned Outcome describes what was
// committed and must be shown to the caller instead of a retry prompt.
func (e *Executor) Apply(ctx context.Context, plan *Plan) (*Outcome, error) {
	out := &Outcome{
		Ticket:    plan.Before.Clone(),
		Duplicate: plan.Match == MatchDuplicate,
		Replayed:  plan.Replay,
		Files:     plan.Files,
		Comment:   plan.Comment,
	}
	log := e.logger.With(
		zap.String("ticket_id", plan.Before.ID),
		zap.String("action", string(plan.Rule.Action)),
		zap.String("actor_id", plan.Actor.ID))

	commentInserted := false
	if !plan.Replay {
		for i, up := range plan.Uploads {
			if err := e.blobs.Upload(ctx, plan.Files[i].StoragePath, up.ContentType, up.Body); err != nil {
				return nil, apperrors.NewStorageUnavailable(err, map[string]any{"step": "upload", "file": up.Name})
			}
		}

		err := e.store.Atomic(ctx, func(ctx context.Context, tx repository.Store) error {
			for i := range plan.Files {
				if _, err := tx.Files().Insert(ctx, &plan.Files[i]); err != nil {
					return fmt.Errorf("insert file: %w", err)
				}
			}
			if plan.Comment != nil {
				inserted, err := tx.Comments().Insert(ctx, plan.Comment)
				if err != nil {
					return fmt.Errorf("insert comment: %w", err)
				}
				commentInserted = inserted
			}
			if plan.Match == MatchApply {
				after := plan.After.Clone()
				if err := tx.Tickets().Update(ctx, &after); err != nil {
					return fmt.Errorf("update ticket: %w", err)
				}
				out.Ticket = after
			}
			if plan.Record != nil {
				if _, err := tx.Submissions().Insert(ctx, plan.Record); err != nil {
					return fmt.Errorf("insert submission: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, apperrors.NewStorageUnavailable(err, map[string]any{"step": "commit"})
		}

		if commentInserted && plan.Rule.Has(EffectAutoReassign) {
			if err := e.autoReassign(ctx, plan, out); err != nil {
				log.Warn("auto reassignment failed", zap.Error(err))
				out.Warnings = append(out.Warnings, "auto_reassign: "+err.Error())
			}
		}
	}

	for i := range plan.Assignments {
		a := plan.Assignments[i]
		if err := e.store.Assignments().Upsert(ctx, &a); err != nil {
			return out, apperrors.NewPartialFailure("ticket updated but assignment failed", err,
				map[string]any{"step": "assignment", "user_id": a.UserID})
		}
		out.Assignments = append(out.Assignments, a)
	}

	if plan.Escalation != nil {
		esc := *plan.Escalation
		if _, err := e.store.Escalations().Insert(ctx, &esc); err != nil {
			return out, apperrors.NewPartialFailure("ticket updated but escalation failed", err,
				map[string]any{"step": "escalation"})
		}
		out.Escalation = &esc
	}

	if plan.Notice != "" && !plan.Replay && e.notifier != nil {
		if err := e.notifier.NotifyClient(ctx, out.Ticket, plan.Notice); err != nil {
			log.Warn("client notification failed", zap.String("notice", string(plan.Notice)), zap.Error(err))
			out.Degraded = append(out.Degraded, "notification")
		}
	}

	return out, nil
}

// autoReassign evaluates the data-mismatch rule against the committed comment
// history and applies its decision.
func (e *Executor) autoReassign(ctx context.Context, plan *Plan, out *Outcome) error {
	comments, err := e.store.Comments().ListByTicket(ctx, plan.Before.ID)
	if err != nil {
		return err
	}
	roles, err := e.commenterRoles(ctx, comments)
	if err != nil {
		return err
	}

	decision := EvaluateAutoReassign(ReassignInput{Ticket: out.Ticket, Client: plan.Client, CommenterRoles: roles})
	if !decision.Fire {
		return nil
	}

	ticket := out.Ticket.Clone()
	ticket.Status = decision.NextStatus
	if err := e.store.Tickets().Update(ctx, &ticket); err != nil {
		return err
	}
	out.Ticket = ticket
	out.AutoReassigned = true

	assignment := domain.Assignment{
		TicketID:   ticket.ID,
		UserID:     decision.AssignUserID,
		AssignedBy: plan.Actor.ID,
	}
	if err := e.store.Assignments().Upsert(ctx, &assignment); err != nil {
		return err
	}
	out.Assignments = append(out.Assignments, assignment)

	e.logger.Info("ticket auto reassigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("reason", decision.Reason),
		zap.String("assignee", decision.AssignUserID))
	return nil
}

func (e *Executor) commenterRoles(ctx context.Context, comments []domain.Comment) ([]domain.Role, error) {
	seen := map[string]bool{}
	var roles []domain.Role
	for _, c := range comments {
		if seen[c.AuthorID] {
			continue
		}
		seen[c.AuthorID] = true
		user, err := e.store.Directory().GetUser(ctx, c.AuthorID)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		roles = append(roles, user.Role)
	}
	return roles, nil
}

// FileID derives the id of the idx-th file of a submission.
func FileID(key string, idx int) string {
	return uuid.NewSHA1(uuid.MustParse(key), []byte(fmt.Sprintf("file:%d", idx))).String()
}

// EscalationID derives the id of the escalation raised by a submission.
func EscalationID(key string) string {
	return uuid.NewSHA1(uuid.MustParse(key), []byte("escalation")).String()
}

func buildFiles(ticketID string, actor domain.Actor, sub Submission, commentID *string, now time.Time) []domain.FileAttachment {
	files := make([]domain.FileAttachment, 0, len(sub.Files))
	for i, up := range sub.Files {
		contentType := up.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, domain.FileAttachment{
			ID:           FileID(sub.Key, i),
			TicketID:     ticketID,
			CommentID:    commentID,
			UploaderID:   actor.ID,
			StoragePath:  blob.ObjectPath(ticketID, sub.Key, i, up.Name),
			OriginalName: up.Name,
			ContentType:  contentType,
			SizeBytes:    int64(len(up.Body)),
			UploadedAt:   now,
		})
	}
	return files
}
