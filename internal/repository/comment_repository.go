package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// CommentRepository manages the append-only comment thread.
type CommentRepository interface {
	// Insert stores the comment unless a row with the same id exists. It reports
	// whether a new row was written.
	Insert(ctx context.Context, comment *domain.Comment) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Comment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
}

type commentRepository struct {
	db DBTX
}

func (r *commentRepository) Insert(ctx context.Context, comment *domain.Comment) (bool, error) {
	const query = `
        INSERT INTO ticket_comments (id, ticket_id, author_id, content, is_internal, show_to_client, status_at_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query,
		comment.ID,
		comment.TicketID,
		comment.AuthorID,
		comment.Content,
		comment.IsInternal,
		comment.ShowToClient,
		comment.StatusAtTime,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, author_id, content, is_internal, show_to_client, status_at_time, created_at
        FROM ticket_comments WHERE id=$1`
	var c domain.Comment
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.TicketID,
		&c.AuthorID,
		&c.Content,
		&c.IsInternal,
		&c.ShowToClient,
		&c.StatusAtTime,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, ticket_id, author_id, content, is_internal, show_to_client, status_at_time, created_at
        FROM ticket_comments WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(
			&c.ID,
			&c.TicketID,
			&c.AuthorID,
			&c.Content,
			&c.IsInternal,
			&c.ShowToClient,
			&c.StatusAtTime,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
