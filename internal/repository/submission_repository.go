package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// SubmissionRepository records which idempotency keys have committed.
type SubmissionRepository interface {
	// Insert stores the record unless the key exists. It reports whether a new
	// row was written.
	Insert(ctx context.Context, rec *domain.SubmissionRecord) (bool, error)
	GetByKey(ctx context.Context, key string) (*domain.SubmissionRecord, error)
}

type submissionRepository struct {
	db DBTX
}

func (r *submissionRepository) Insert(ctx context.Context, rec *domain.SubmissionRecord) (bool, error) {
	const query = `
        INSERT INTO ticket_submissions (key, ticket_id, actor_id, action, duplicate)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (key) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query, rec.Key, rec.TicketID, rec.ActorID, rec.Action, rec.Duplicate)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *submissionRepository) GetByKey(ctx context.Context, key string) (*domain.SubmissionRecord, error) {
	const query = `
        SELECT key, ticket_id, actor_id, action, duplicate, created_at
        FROM ticket_submissions WHERE key=$1`
	var rec domain.SubmissionRecord
	if err := r.db.QueryRow(ctx, query, key).Scan(
		&rec.Key,
		&rec.TicketID,
		&rec.ActorID,
		&rec.Action,
		&rec.Duplicate,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
