package workflow

import "github.com/spec-kit/ticket-workflow/internal/domain"

// Assignee is an assignment joined with the user directory.
type Assignee struct {
	UserID string
	Name   string
	Role   domain.Role
}

// Project returns the tickets actor may see, in input order. Executives see
// everything; others only tickets they are assigned to. The result shares no
// memory with tickets.
func Project(actor domain.Actor, tickets []domain.Ticket, assignments []domain.Assignment) []domain.Ticket {
	visible := make([]domain.Ticket, 0, len(tickets))
	if actor.Role.IsExecutive() {
		for _, t := range tickets {
			visible = append(visible, t.Clone())
		}
		return visible
	}

	mine := make(map[string]bool)
	for _, a := range assignments {
		if a.UserID == actor.ID {
			mine[a.TicketID] = true
		}
	}
	for _, t := range tickets {
		if mine[t.ID] {
			visible = append(visible, t.Clone())
		}
	}
	return visible
}

// AssigneesByTicket groups assignments per ticket, resolving names and roles from
// users. Unknown users keep their id with an empty name.
func AssigneesByTicket(assignments []domain.Assignment, users []domain.User) map[string][]Assignee {
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make(map[string][]Assignee)
	for _, a := range assignments {
		u := byID[a.UserID]
		out[a.TicketID] = append(out[a.TicketID], Assignee{UserID: a.UserID, Name: u.Name, Role: u.Role})
	}
	return out
}
