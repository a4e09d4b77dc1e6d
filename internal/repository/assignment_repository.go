package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// AssignmentRepository manages the (ticket, user) assignment set.
type AssignmentRepository interface {
	// Upsert is a no-op when the pair already exists.
	Upsert(ctx context.Context, a *domain.Assignment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error)
	ListAll(ctx context.Context) ([]domain.Assignment, error)
}

type assignmentRepository struct {
	db DBTX
}

func (r *assignmentRepository) Upsert(ctx context.Context, a *domain.Assignment) error {
	const query = `
        INSERT INTO ticket_assignments (ticket_id, user_id, assigned_by)
        VALUES ($1,$2,$3)
        ON CONFLICT (ticket_id, user_id) DO NOTHING`
	_, err := r.db.Exec(ctx, query, a.TicketID, a.UserID, a.AssignedBy)
	return err
}

func (r *assignmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Assignment, error) {
	const query = `
        SELECT ticket_id, user_id, assigned_by, created_at
        FROM ticket_assignments WHERE ticket_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, query, ticketID)
}

func (r *assignmentRepository) ListAll(ctx context.Context) ([]domain.Assignment, error) {
	const query = `
        SELECT ticket_id, user_id, assigned_by, created_at
        FROM ticket_assignments ORDER BY created_at ASC`
	return r.list(ctx, query)
}

func (r *assignmentRepository) list(ctx context.Context, query string, args ...any) ([]domain.Assignment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.TicketID, &a.UserID, &a.AssignedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
