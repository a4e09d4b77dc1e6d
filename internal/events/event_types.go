package events

import "time"

// Table identifies one of the five workflow tables.
type Table string

const (
	TableTickets     Table = "tickets"
	TableComments    Table = "ticket_comments"
	TableFiles       Table = "ticket_files"
	TableAssignments Table = "ticket_assignments"
	TableEscalations Table = "ticket_escalations"
)

// AllTables lists every table the change feed reports on.
var AllTables = []Table{TableTickets, TableComments, TableFiles, TableAssignments, TableEscalations}

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// ChangeEvent describes a single committed row change.
type ChangeEvent struct {
	Table     Table     `json:"table"`
	Op        Op        `json:"op"`
	RowID     string    `json:"row_id"`
	TicketID  string    `json:"ticket_id"`
	Timestamp time.Time `json:"timestamp"`
}
