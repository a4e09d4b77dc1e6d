package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	IDs      []string
	ClientID *string
	Types    []domain.TicketType
	Statuses []domain.TicketStatus
	Limit    int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `id, type, status, priority, client_id, created_by, title, description, short_code,
               due_date, escalation_level, metadata, required_manager_attention, ca_confirmed,
               ca_team_lead_confirmed, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, type, status, priority, client_id, created_by, title, description, short_code, due_date, metadata)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()),$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.Type,
		ticket.Status,
		ticket.Priority,
		ticket.ClientID,
		ticket.CreatedBy,
		ticket.Title,
		ticket.Description,
		ticket.ShortCode,
		ticket.DueDate,
		metadataOrEmpty(ticket.Metadata),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update writes the mutable workflow fields. Last writer wins.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, escalation_level=$2, metadata=$3, required_manager_attention=$4,
            ca_confirmed=$5, ca_team_lead_confirmed=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Status,
		ticket.EscalationLevel,
		metadataOrEmpty(ticket.Metadata),
		ticket.RequiredManagerAttention,
		ticket.CAConfirmed,
		ticket.CATeamLeadConfirmed,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &tickets[0], nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		clauses = append(clauses, fmt.Sprintf("id = ANY($%d::uuid[])", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, tt := range filter.Types {
			args = append(args, tt)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Type,
			&ticket.Status,
			&ticket.Priority,
			&ticket.ClientID,
			&ticket.CreatedBy,
			&ticket.Title,
			&ticket.Description,
			&ticket.ShortCode,
			&ticket.DueDate,
			&ticket.EscalationLevel,
			&ticket.Metadata,
			&ticket.RequiredManagerAttention,
			&ticket.CAConfirmed,
			&ticket.CATeamLeadConfirmed,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func metadataOrEmpty(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}
