package workflow

import "github.com/spec-kit/ticket-workflow/internal/domain"

// ReassignInput is everything the auto-reassignment rule looks at.
type ReassignInput struct {
	Ticket         domain.Ticket
	Client         domain.Client
	CommenterRoles []domain.Role
}

// Decision is the evaluator's verdict. A zero Decision means no change.
type Decision struct {
	Fire         bool
	NextStatus   domain.TicketStatus
	AssignUserID string
	Reason       string
}

const (
	reasonSelfManaged   = "self_managed_client"
	reasonBothResponded = "career_associate_and_scraping_team_responded"
)

// EvaluateAutoReassign decides whether a forwarded data-mismatch ticket should move
// to replied and be handed to the client's career associate manager. It only
// reads its input.
func EvaluateAutoReassign(in ReassignInput) Decision {
	if in.Ticket.Type != domain.TicketTypeDataMismatch || in.Ticket.Status != domain.TicketStatusForwarded {
		return Decision{}
	}
	managerID := in.Client.CareerAssociateManagerID
	if managerID == "" {
		return Decision{}
	}

	if in.Client.SelfManaged() {
		return Decision{
			Fire:         true,
			NextStatus:   domain.TicketStatusReplied,
			AssignUserID: managerID,
			Reason:       reasonSelfManaged,
		}
	}

	var sawCA, sawScraping bool
	for _, role := range in.CommenterRoles {
		switch role {
		case domain.RoleCareerAssociate:
			sawCA = true
		case domain.RoleScrapingTeam:
			sawScraping = true
		}
	}
	if sawCA && sawScraping {
		return Decision{
			Fire:         true,
			NextStatus:   domain.TicketStatusReplied,
			AssignUserID: managerID,
			Reason:       reasonBothResponded,
		}
	}
	return Decision{}
}
