package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// FileRepository persists attachment metadata. Blobs live in blob storage.
type FileRepository interface {
	Insert(ctx context.Context, file *domain.FileAttachment) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.FileAttachment, error)
}

type fileRepository struct {
	db DBTX
}

func (r *fileRepository) Insert(ctx context.Context, file *domain.FileAttachment) (bool, error) {
	const query = `
        INSERT INTO ticket_files (id, ticket_id, comment_id, uploader_id, storage_path, original_name,
            content_type, size_bytes, for_initial_attachment)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query,
		file.ID,
		file.TicketID,
		file.CommentID,
		file.UploaderID,
		file.StoragePath,
		file.OriginalName,
		file.ContentType,
		file.SizeBytes,
		file.ForInitialAttachment,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *fileRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.FileAttachment, error) {
	const query = `
        SELECT id, ticket_id, comment_id, uploader_id, storage_path, original_name, content_type,
               size_bytes, for_initial_attachment, uploaded_at
        FROM ticket_files WHERE ticket_id=$1 ORDER BY uploaded_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FileAttachment
	for rows.Next() {
		var f domain.FileAttachment
		if err := rows.Scan(
			&f.ID,
			&f.TicketID,
			&f.CommentID,
			&f.UploaderID,
			&f.StoragePath,
			&f.OriginalName,
			&f.ContentType,
			&f.SizeBytes,
			&f.ForInitialAttachment,
			&f.UploadedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
