package domain

import "time"

// TicketType selects the built-in state machine a ticket follows.
type TicketType string

const (
	TicketTypeVolumeShortfall TicketType = "volume_shortfall"
	TicketTypeDataMismatch    TicketType = "data_mismatch"
	TicketTypeResumeUpdate    TicketType = "resume_update"
)

// TicketStatus enumerates lifecycle states across all ticket types.
type TicketStatus string

const (
	TicketStatusOpen                TicketStatus = "open"
	TicketStatusForwarded           TicketStatus = "forwarded"
	TicketStatusReplied             TicketStatus = "replied"
	TicketStatusClosed              TicketStatus = "closed"
	TicketStatusResolved            TicketStatus = "resolved"
	TicketStatusEscalated           TicketStatus = "escalated"
	TicketStatusManagerAttention    TicketStatus = "manager_attention"
	TicketStatusPendingClientReview TicketStatus = "pending_client_review"
	TicketStatusReopen              TicketStatus = "reopen"
)

var statusesByType = map[TicketType][]TicketStatus{
	TicketTypeVolumeShortfall: {
		TicketStatusOpen, TicketStatusForwarded, TicketStatusReplied, TicketStatusClosed,
		TicketStatusResolved, TicketStatusEscalated, TicketStatusManagerAttention,
	},
	TicketTypeDataMismatch: {
		TicketStatusOpen, TicketStatusForwarded, TicketStatusReplied, TicketStatusClosed,
		TicketStatusResolved, TicketStatusEscalated, TicketStatusManagerAttention,
	},
	TicketTypeResumeUpdate: {
		TicketStatusOpen, TicketStatusForwarded, TicketStatusReplied,
		TicketStatusPendingClientReview, TicketStatusResolved, TicketStatusReopen,
	},
}

// Valid reports whether t is one of the built-in ticket types.
func (t TicketType) Valid() bool {
	_, ok := statusesByType[t]
	return ok
}

// Statuses returns the status enum declared for t.
func (t TicketType) Statuses() []TicketStatus {
	return append([]TicketStatus(nil), statusesByType[t]...)
}

// AllowsStatus reports whether s belongs to the enum declared for t.
func (t TicketType) AllowsStatus(s TicketStatus) bool {
	for _, candidate := range statusesByType[t] {
		if candidate == s {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// SLA returns the resolution window for the priority.
func (p TicketPriority) SLA() time.Duration {
	switch p {
	case TicketPriorityCritical:
		return 4 * time.Hour
	case TicketPriorityHigh:
		return 12 * time.Hour
	case TicketPriorityLow:
		return 72 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Ticket is the aggregate root; every other workflow record hangs off it.
type Ticket struct {
	ID                       string
	Type                     TicketType
	Status                   TicketStatus
	Priority                 TicketPriority
	ClientID                 string
	CreatedBy                string
	Title                    string
	Description              string
	ShortCode                string
	DueDate                  time.Time
	EscalationLevel          int
	Metadata                 map[string]string
	RequiredManagerAttention bool
	CAConfirmed              bool
	CATeamLeadConfirmed      bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing metadata.
func (t Ticket) Clone() Ticket {
	if t.Metadata != nil {
		md := make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			md[k] = v
		}
		t.Metadata = md
	}
	return t
}
