package domain

import "time"

// Assignment links a user to a ticket. (TicketID, UserID) is unique.
type Assignment struct {
	TicketID   string
	UserID     string
	AssignedBy string
	CreatedAt  time.Time
}

// Escalation records a complaint raised against a staff member on a ticket.
// Raising one never changes the ticket status.
type Escalation struct {
	ID            string
	TicketID      string
	EscalatedBy   string
	SubjectUserID string
	Reason        string
	CreatedAt     time.Time
}
