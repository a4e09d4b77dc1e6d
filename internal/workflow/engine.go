package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/blob"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/idempotency"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Engine validates and applies workflow commands.
type Engine struct {
	store    repository.Store
	tables   Tables
	executor *Executor
	ledger   idempotency.Ledger
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// EngineDependencies bundles the engine's collaborators. Ledger, Notifier and
// Metrics are optional.
type EngineDependencies struct {
	Store    repository.Store
	Blobs    blob.Storage
	Notifier Notifier
	Ledger   idempotency.Ledger
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Tables   Tables
	Clock    func() time.Time
}

// NewEngine builds an engine over the default tables unless deps overrides them.
func NewEngine(deps EngineDependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tables := deps.Tables
	if tables == nil {
		tables = DefaultTables()
	}
	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    deps.Store,
		tables:   tables,
		executor: NewExecutor(deps.Store, deps.Blobs, deps.Notifier, logger),
		ledger:   deps.Ledger,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      now,
	}
}

type ledgerRecord struct {
	TicketID string   `json:"ticket_id"`
	Action   Action   `json:"action"`
	Outcome  *Outcome `json:"outcome"`
}

// Submit runs cmd on behalf of actor.
func (e *Engine) Submit(ctx context.Context, actor domain.Actor, cmd Command) (*Outcome, error) {
	out, ticketType, err := e.submit(ctx, actor, cmd)
	e.metrics.RecordTransition(string(ticketType), string(cmd.Action()), outcomeLabel(out, err))
	return out, err
}

func (e *Engine) submit(ctx context.Context, actor domain.Actor, cmd Command) (*Outcome, domain.TicketType, error) {
	if err := cmd.Validate(); err != nil {
		return nil, "", err
	}
	sub := cmd.submission()

	ticket, err := e.store.Tickets().GetByID(ctx, sub.TicketID)
	if apperrors.IsNotFound(err) {
		return nil, "", apperrors.NewNotFound("ticket", map[string]any{"ticket_id": sub.TicketID})
	}
	if err != nil {
		return nil, "", apperrors.NewStorageUnavailable(err, map[string]any{"step": "load_ticket"})
	}
	assignments, err := e.store.Assignments().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, ticket.Type, apperrors.NewStorageUnavailable(err, map[string]any{"step": "load_assignments"})
	}

	if !CanAct(actor, *ticket, assignments) {
		return nil, ticket.Type, apperrors.NewPermissionDenied("not assigned to this ticket",
			map[string]any{"ticket_id": ticket.ID})
	}

	if out, ok, err := e.recall(ctx, sub, cmd.Action()); err != nil || ok {
		return out, ticket.Type, err
	}

	table, err := e.tables.For(ticket.Type)
	if err != nil {
		return nil, ticket.Type, err
	}

	rec, err := e.committed(ctx, actor, ticket.ID, sub, cmd.Action())
	if err != nil {
		return nil, ticket.Type, err
	}
	replay := rec != nil

	var (
		rule  Rule
		match Match
	)
	if replay {
		// rebuild the plan with the match the first attempt committed under
		r, ok := table.Rule(cmd.Action())
		if !ok {
			return nil, ticket.Type, apperrors.NewPreconditionFailed("action not available", nil)
		}
		rule, match = r, MatchApply
		if rec.Duplicate {
			match = MatchDuplicate
		}
	} else {
		rule, match, err = table.Lookup(*ticket, actor.Role, cmd.Action())
		if err != nil {
			return nil, ticket.Type, err
		}
	}
	if err := checkRequirements(rule, sub); err != nil {
		return nil, ticket.Type, err
	}

	if route, ok := cmd.(RouteToMemberCommand); ok && match == MatchApply && route.MemberID == "" {
		cmd, err = e.currentMember(ctx, *ticket, assignments, route, replay)
		if err != nil {
			return nil, ticket.Type, err
		}
	}

	client, err := e.loadClient(ctx, ticket.ClientID)
	if err != nil {
		return nil, ticket.Type, err
	}

	plan, err := e.plan(actor, *ticket, client, rule, match, cmd, replay)
	if err != nil {
		return nil, ticket.Type, err
	}

	out, err := e.executor.Apply(ctx, plan)
	if err != nil {
		e.logger.Warn("workflow submission failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("action", string(rule.Action)),
			zap.Error(err))
		return out, ticket.Type, err
	}

	e.remember(ctx, sub, cmd.Action(), out)
	e.logger.Info("workflow submission applied",
		zap.String("ticket_id", ticket.ID),
		zap.String("action", string(rule.Action)),
		zap.String("match", match.String()),
		zap.Bool("replayed", replay),
		zap.String("status", string(out.Ticket.Status)))
	return out, ticket.Type, nil
}

// plan derives every row the submission will write.
func (e *Engine) plan(actor domain.Actor, ticket domain.Ticket, client domain.Client, rule Rule, match Match, cmd Command, replay bool) (*Plan, error) {
	sub := cmd.submission()
	now := e.now()

	after := ticket.Clone()
	if match == MatchApply {
		after.Status = rule.Next(ticket.Status)
		if rule.Has(EffectIncrementEscalation) {
			after.EscalationLevel++
		}
		if rule.Has(EffectSetManagerAttention) {
			after.RequiredManagerAttention = true
		}
		if rule.Has(EffectClearManagerAttention) {
			after.RequiredManagerAttention = false
		}
		if rule.Has(EffectConfirmCA) {
			after.CAConfirmed = true
		}
		if rule.Has(EffectConfirmCATeamLead) {
			after.CATeamLeadConfirmed = true
		}
	}
	if !ticket.Type.AllowsStatus(after.Status) {
		return nil, apperrors.NewPreconditionFailed("transition leaves the ticket in an unknown status",
			map[string]any{"status": after.Status})
	}

	plan := &Plan{
		Actor:   actor,
		Rule:    rule,
		Match:   match,
		Before:  ticket,
		After:   after,
		Client:  client,
		Uploads: sub.Files,
		Replay:  replay,
		Record: &domain.SubmissionRecord{
			Key:       sub.Key,
			TicketID:  ticket.ID,
			ActorID:   actor.ID,
			Action:    string(rule.Action),
			Duplicate: match == MatchDuplicate,
			CreatedAt: now,
		},
	}

	if sub.HasComment() || len(sub.Files) > 0 {
		key := sub.Key
		plan.Comment = &domain.Comment{
			ID:           key,
			TicketID:     ticket.ID,
			AuthorID:     actor.ID,
			Content:      strings.TrimSpace(sub.Comment),
			IsInternal:   sub.Internal && actor.Role != domain.RoleClient,
			ShowToClient: rule.Has(EffectShowToClient),
			StatusAtTime: after.Status,
			CreatedAt:    now,
		}
		plan.Files = buildFiles(ticket.ID, actor, sub, &key, now)
	}

	if match != MatchApply {
		return plan, nil
	}

	var assignees []string
	if rule.Has(EffectAssignSelected) {
		assignees = append(assignees, assignTargets(cmd)...)
	}
	if rule.Has(EffectAssignCAManager) && client.CareerAssociateManagerID != "" {
		assignees = append(assignees, client.CareerAssociateManagerID)
	}
	for _, userID := range nonBlank(assignees) {
		plan.Assignments = append(plan.Assignments, domain.Assignment{
			TicketID:   ticket.ID,
			UserID:     userID,
			AssignedBy: actor.ID,
			CreatedAt:  now,
		})
	}

	if closeCmd, ok := cmd.(CloseCommand); ok && closeCmd.Escalation != nil && rule.Has(EffectEscalationSideChannel) {
		esc, err := escalationFor(closeCmd, ticket, client, actor, now, replay)
		if err != nil {
			return nil, err
		}
		plan.Escalation = esc
	}

	if rule.Notice != "" {
		plan.Notice = rule.Notice
	}
	return plan, nil
}

func escalationFor(cmd CloseCommand, ticket domain.Ticket, client domain.Client, actor domain.Actor, now time.Time, replay bool) (*domain.Escalation, error) {
	if !replay && ticket.Status != domain.TicketStatusOpen {
		return nil, apperrors.NewPreconditionFailed("an escalation can only be raised when closing an open ticket",
			map[string]any{"status": ticket.Status})
	}
	subject := strings.TrimSpace(cmd.Escalation.SubjectUserID)
	if subject == "" {
		subject = client.CareerAssociateID
	}
	if subject == "" {
		return nil, apperrors.NewPreconditionFailed("escalation subject is unknown", nil)
	}
	reason := strings.TrimSpace(cmd.Escalation.Reason)
	if reason == "" {
		reason = strings.TrimSpace(cmd.Comment)
	}
	return &domain.Escalation{
		ID:            EscalationID(cmd.Key),
		TicketID:      ticket.ID,
		EscalatedBy:   actor.ID,
		SubjectUserID: subject,
		Reason:        reason,
		CreatedAt:     now,
	}, nil
}

// committed returns the record an earlier attempt under the same key wrote, or
// nil when no attempt got past the atomic unit.
func (e *Engine) committed(ctx context.Context, actor domain.Actor, ticketID string, sub Submission, action Action) (*domain.SubmissionRecord, error) {
	rec, err := e.store.Submissions().GetByKey(ctx, sub.Key)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailable(err, map[string]any{"step": "replay_check"})
	}
	if rec.TicketID != ticketID || rec.ActorID != actor.ID || rec.Action != string(action) {
		return nil, apperrors.NewConflict("idempotency key already used for another submission",
			map[string]any{"key": sub.Key})
	}
	return rec, nil
}

// currentMember resolves a route without a selection to the resume team member
// already working the ticket. Only a reopened ticket may be re-routed that way.
func (e *Engine) currentMember(ctx context.Context, ticket domain.Ticket, assignments []domain.Assignment, cmd RouteToMemberCommand, replay bool) (Command, error) {
	if ticket.Status != domain.TicketStatusReopen && !replay {
		return nil, apperrors.NewPreconditionFailed("a resume team member must be selected",
			map[string]any{"status": ticket.Status})
	}
	for _, a := range assignments {
		user, err := e.store.Directory().GetUser(ctx, a.UserID)
		if apperrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, apperrors.NewStorageUnavailable(err, map[string]any{"step": "load_member"})
		}
		if user.Role == domain.RoleResumeTeamMember {
			cmd.MemberID = user.ID
			return cmd, nil
		}
	}
	return nil, apperrors.NewPreconditionFailed("no resume team member is assigned to this ticket", nil)
}

func (e *Engine) loadClient(ctx context.Context, clientID string) (domain.Client, error) {
	client, err := e.store.Directory().GetClient(ctx, clientID)
	if apperrors.IsNotFound(err) {
		return domain.Client{ID: clientID}, nil
	}
	if err != nil {
		return domain.Client{}, apperrors.NewStorageUnavailable(err, map[string]any{"step": "load_client"})
	}
	return *client, nil
}

func (e *Engine) recall(ctx context.Context, sub Submission, action Action) (*Outcome, bool, error) {
	if e.ledger == nil {
		return nil, false, nil
	}
	raw, found, err := e.ledger.Recall(ctx, sub.Key)
	if err != nil {
		// the store-level replay check still protects us
		e.logger.Warn("idempotency ledger unavailable", zap.Error(err))
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	var rec ledgerRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Outcome == nil {
		e.logger.Warn("discarding unreadable ledger entry", zap.String("key", sub.Key))
		return nil, false, nil
	}
	if rec.TicketID != sub.TicketID || rec.Action != action {
		return nil, false, apperrors.NewConflict("idempotency key already used for another submission",
			map[string]any{"key": sub.Key, "ticket_id": rec.TicketID, "action": rec.Action})
	}
	rec.Outcome.Replayed = true
	return rec.Outcome, true, nil
}

func (e *Engine) remember(ctx context.Context, sub Submission, action Action, out *Outcome) {
	if e.ledger == nil {
		return
	}
	raw, err := json.Marshal(ledgerRecord{TicketID: sub.TicketID, Action: action, Outcome: out})
	if err != nil {
		return
	}
	if _, err := e.ledger.Remember(ctx, sub.Key, raw); err != nil {
		e.logger.Warn("idempotency ledger write failed", zap.String("key", sub.Key), zap.Error(err))
	}
}

func outcomeLabel(out *Outcome, err error) string {
	if err != nil {
		if de := apperrors.ToDomainError(err); de != nil {
			return de.Code
		}
		return apperrors.CodeInternal
	}
	switch {
	case out.Replayed:
		return "replayed"
	case out.Duplicate:
		return "duplicate"
	case len(out.Degraded) > 0:
		return "degraded"
	}
	return "applied"
}
