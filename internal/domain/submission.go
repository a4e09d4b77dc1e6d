package domain

import "time"

// SubmissionRecord anchors a committed workflow submission by its idempotency
// key. It is written in the same unit of work as the ticket update, so a retry
// can tell how far the first attempt got and whether it matched as a duplicate.
type SubmissionRecord struct {
	Key       string
	TicketID  string
	ActorID   string
	Action    string
	Duplicate bool
	CreatedAt time.Time
}
