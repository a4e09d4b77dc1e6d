package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// EscalationRepository records complaints raised against staff members.
type EscalationRepository interface {
	Insert(ctx context.Context, e *domain.Escalation) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Escalation, error)
}

type escalationRepository struct {
	db DBTX
}

func (r *escalationRepository) Insert(ctx context.Context, e *domain.Escalation) (bool, error) {
	const query = `
        INSERT INTO ticket_escalations (id, ticket_id, escalated_by, subject_user_id, reason)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query, e.ID, e.TicketID, e.EscalatedBy, e.SubjectUserID, e.Reason)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *escalationRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Escalation, error) {
	const query = `
        SELECT id, ticket_id, escalated_by, subject_user_id, reason, created_at
        FROM ticket_escalations WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Escalation
	for rows.Next() {
		var e domain.Escalation
		if err := rows.Scan(&e.ID, &e.TicketID, &e.EscalatedBy, &e.SubjectUserID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
