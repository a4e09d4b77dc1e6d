package workflow

import "github.com/spec-kit/ticket-workflow/internal/domain"

// CanAct reports whether actor may touch ticket: executives always may, everyone
// else must be in the ticket's assignment set. It never errors.
func CanAct(actor domain.Actor, ticket domain.Ticket, assignments []domain.Assignment) bool {
	if actor.Role.IsExecutive() {
		return true
	}
	for _, a := range assignments {
		if a.TicketID == ticket.ID && a.UserID == actor.ID {
			return true
		}
	}
	return false
}
