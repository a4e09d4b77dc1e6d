package workflow

import (
	"fmt"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Action names a user-triggered step.
type Action string

const (
	ActionComment             Action = "comment"
	ActionForward             Action = "forward"
	ActionReply               Action = "reply"
	ActionEscalate            Action = "escalate"
	ActionClose               Action = "close"
	ActionConfirmResolved     Action = "confirm_resolved"
	ActionRequestManager      Action = "request_manager"
	ActionResolve             Action = "resolve"
	ActionRouteToMember       Action = "route_to_member"
	ActionSubmitResume        Action = "submit_resume"
	ActionForwardToClient     Action = "forward_to_client"
	ActionApproveResume       Action = "approve_resume"
	ActionRequestChanges      Action = "request_changes"
	ActionConfirmApplying     Action = "confirm_applying"
	ActionAcknowledgeApplying Action = "acknowledge_applying"
)

// Requirement is a precondition on the submission payload or the ticket.
type Requirement uint

const (
	RequireComment Requirement = 1 << iota
	RequireCommentOrFile
	RequireOneFile
	RequireCANotConfirmed
	RequireCAConfirmed
)

// Effect is a status-dependent side effect applied only on a non-duplicate match.
type Effect uint

const (
	EffectAssignSelected Effect = 1 << iota
	EffectAssignCAManager
	EffectIncrementEscalation
	EffectSetManagerAttention
	EffectClearManagerAttention
	EffectShowToClient
	EffectConfirmCA
	EffectConfirmCATeamLead
	EffectEscalationSideChannel
	EffectAutoReassign
)

// Rule is one row of a transition table. Empty From means any status; empty To
// means the status is kept. Empty Roles means any role.
type Rule struct {
	Action   Action
	From     []domain.TicketStatus
	To       domain.TicketStatus
	Roles    []domain.Role
	Requires Requirement
	Effects  Effect
	Notice   notification.Notice
}

// Has reports whether the rule declares effect e.
func (r Rule) Has(e Effect) bool { return r.Effects&e != 0 }

// Needs reports whether the rule declares requirement q.
func (r Rule) Needs(q Requirement) bool { return r.Requires&q != 0 }

func (r Rule) allowsRole(role domain.Role) bool {
	if len(r.Roles) == 0 {
		return true
	}
	for _, candidate := range r.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

func (r Rule) fromAny() bool { return len(r.From) == 0 }

func (r Rule) allowsFrom(status domain.TicketStatus) bool {
	if r.fromAny() {
		return true
	}
	for _, s := range r.From {
		if s == status {
			return true
		}
	}
	return false
}

// Next returns the status the ticket ends in when the rule applies from current.
func (r Rule) Next(current domain.TicketStatus) domain.TicketStatus {
	if r.To == "" {
		return current
	}
	return r.To
}

// Match tells the executor whether status-dependent effects run.
type Match int

const (
	MatchApply Match = iota
	MatchDuplicate
)

func (m Match) String() string {
	if m == MatchDuplicate {
		return "duplicate"
	}
	return "apply"
}

// Table is the state machine for one ticket type.
type Table struct {
	Type  domain.TicketType
	Rules []Rule
}

// Rule returns the rule for action.
func (t Table) Rule(action Action) (Rule, bool) {
	for _, r := range t.Rules {
		if r.Action == action {
			return r, true
		}
	}
	return Rule{}, false
}

// Lookup resolves (ticket, role, action) to a rule. A ticket already sitting in
// the rule's target status, or already carrying the confirmation the rule sets,
// matches as a duplicate.
func (t Table) Lookup(ticket domain.Ticket, role domain.Role, action Action) (Rule, Match, error) {
	rule, ok := t.Rule(action)
	if !ok {
		return Rule{}, 0, apperrors.NewPreconditionFailed(
			fmt.Sprintf("action %q is not available for %s tickets", action, t.Type),
			map[string]any{"action": action, "type": t.Type})
	}
	if !rule.allowsRole(role) {
		return Rule{}, 0, apperrors.NewPermissionDenied(
			fmt.Sprintf("role %s may not %s", role, action),
			map[string]any{"action": action, "role": role})
	}

	if rule.Has(EffectConfirmCA) && ticket.CAConfirmed {
		return rule, MatchDuplicate, nil
	}
	if rule.Has(EffectConfirmCATeamLead) && ticket.CATeamLeadConfirmed {
		return rule, MatchDuplicate, nil
	}
	if rule.allowsFrom(ticket.Status) {
		if rule.Needs(RequireCAConfirmed) && !ticket.CAConfirmed {
			return Rule{}, 0, apperrors.NewPreconditionFailed(
				"career associate has not confirmed applying yet",
				map[string]any{"action": action})
		}
		return rule, MatchApply, nil
	}
	if rule.To != "" && ticket.Status == rule.To {
		return rule, MatchDuplicate, nil
	}
	return Rule{}, 0, apperrors.NewPreconditionFailed(
		fmt.Sprintf("cannot %s a ticket in status %s", action, ticket.Status),
		map[string]any{"action": action, "status": ticket.Status, "allowed_from": rule.From})
}

var (
	executives = []domain.Role{domain.RoleCRO, domain.RoleCOO, domain.RoleCEO}

	routers     = append([]domain.Role{domain.RoleAccountManager, domain.RoleCATeamLead}, executives...)
	closers     = append([]domain.Role{domain.RoleCATeamLead}, executives...)
	resolvers   = append([]domain.Role{domain.RoleAccountManager}, executives...)
	resumeHeads = append([]domain.Role{domain.RoleResumeTeamHead}, executives...)
)

func complaintRules(t domain.TicketType) []Rule {
	comment := Rule{Action: ActionComment, Requires: RequireCommentOrFile}
	if t == domain.TicketTypeDataMismatch {
		comment.Effects = EffectAutoReassign
	}

	rules := []Rule{
		comment,
		{
			Action:  ActionForward,
			From:    []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusEscalated},
			To:      domain.TicketStatusForwarded,
			Roles:   routers,
			Effects: EffectAssignSelected,
		},
		{
			Action:   ActionEscalate,
			From:     []domain.TicketStatus{domain.TicketStatusOpen},
			To:       domain.TicketStatusEscalated,
			Roles:    routers,
			Requires: RequireComment,
			Effects:  EffectIncrementEscalation,
		},
		{
			Action:   ActionClose,
			From:     []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusReplied, domain.TicketStatusEscalated},
			To:       domain.TicketStatusClosed,
			Roles:    closers,
			Requires: RequireComment,
			Effects:  EffectEscalationSideChannel,
			Notice:   notification.NoticeTicketClosed,
		},
		{
			Action: ActionConfirmResolved,
			From:   []domain.TicketStatus{domain.TicketStatusClosed},
			To:     domain.TicketStatusResolved,
			Roles:  []domain.Role{domain.RoleClient},
		},
		{
			Action:  ActionRequestManager,
			From:    []domain.TicketStatus{domain.TicketStatusClosed},
			To:      domain.TicketStatusManagerAttention,
			Roles:   []domain.Role{domain.RoleClient},
			Effects: EffectSetManagerAttention | EffectIncrementEscalation,
		},
		{
			Action:   ActionResolve,
			From:     []domain.TicketStatus{domain.TicketStatusManagerAttention},
			To:       domain.TicketStatusResolved,
			Roles:    resolvers,
			Requires: RequireComment,
			Effects:  EffectClearManagerAttention,
			Notice:   notification.NoticeTicketResolved,
		},
	}

	if t == domain.TicketTypeVolumeShortfall {
		rules = append(rules, Rule{
			Action:   ActionReply,
			From:     []domain.TicketStatus{domain.TicketStatusForwarded},
			To:       domain.TicketStatusReplied,
			Roles:    []domain.Role{domain.RoleCareerAssociate, domain.RoleScrapingTeam},
			Requires: RequireComment,
			Effects:  EffectAssignCAManager,
		})
	}
	return rules
}

func resumeRules() []Rule {
	return []Rule{
		{Action: ActionComment, Requires: RequireCommentOrFile},
		{
			Action:  ActionRouteToMember,
			From:    []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusReopen},
			To:      domain.TicketStatusForwarded,
			Roles:   resumeHeads,
			Effects: EffectAssignSelected,
		},
		{
			Action:   ActionSubmitResume,
			From:     []domain.TicketStatus{domain.TicketStatusForwarded},
			To:       domain.TicketStatusReplied,
			Roles:    []domain.Role{domain.RoleResumeTeamMember},
			Requires: RequireComment | RequireOneFile,
		},
		{
			Action:   ActionForwardToClient,
			From:     []domain.TicketStatus{domain.TicketStatusReplied},
			To:       domain.TicketStatusPendingClientReview,
			Roles:    []domain.Role{domain.RoleResumeTeamHead},
			Requires: RequireComment | RequireOneFile,
			Effects:  EffectShowToClient,
			Notice:   notification.NoticeResumeReady,
		},
		{
			Action: ActionApproveResume,
			From:   []domain.TicketStatus{domain.TicketStatusPendingClientReview},
			To:     domain.TicketStatusResolved,
			Roles:  []domain.Role{domain.RoleClient},
		},
		{
			Action:   ActionRequestChanges,
			From:     []domain.TicketStatus{domain.TicketStatusPendingClientReview},
			To:       domain.TicketStatusReopen,
			Roles:    []domain.Role{domain.RoleClient},
			Requires: RequireComment,
			Effects:  EffectShowToClient,
		},
		{
			Action:   ActionConfirmApplying,
			From:     []domain.TicketStatus{domain.TicketStatusResolved},
			To:       domain.TicketStatusResolved,
			Roles:    []domain.Role{domain.RoleCareerAssociate},
			Requires: RequireCANotConfirmed,
			Effects:  EffectConfirmCA,
		},
		{
			Action:   ActionAcknowledgeApplying,
			From:     []domain.TicketStatus{domain.TicketStatusResolved},
			To:       domain.TicketStatusResolved,
			Roles:    []domain.Role{domain.RoleCATeamLead},
			Requires: RequireCAConfirmed,
			Effects:  EffectConfirmCATeamLead,
		},
	}
}

// Tables maps each ticket type to its state machine.
type Tables map[domain.TicketType]Table

// DefaultTables returns the built-in state machines.
func DefaultTables() Tables {
	return Tables{
		domain.TicketTypeVolumeShortfall: {Type: domain.TicketTypeVolumeShortfall, Rules: complaintRules(domain.TicketTypeVolumeShortfall)},
		domain.TicketTypeDataMismatch:    {Type: domain.TicketTypeDataMismatch, Rules: complaintRules(domain.TicketTypeDataMismatch)},
		domain.TicketTypeResumeUpdate:    {Type: domain.TicketTypeResumeUpdate, Rules: resumeRules()},
	}
}

// For returns the table for a ticket type.
func (ts Tables) For(t domain.TicketType) (Table, error) {
	table, ok := ts[t]
	if !ok {
		return Table{}, apperrors.NewValidationError("unknown ticket type", map[string]any{"type": t})
	}
	return table, nil
}
