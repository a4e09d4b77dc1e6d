package repository

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// DirectoryRepository reads user and client records owned by other systems.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
}

type directoryRepository struct {
	db DBTX
}

func (r *directoryRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, name, email, role FROM users WHERE id=$1`
	var u domain.User
	if err := r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *directoryRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, name, email, role FROM users ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *directoryRepository) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	const query = `
        SELECT id, name, email, COALESCE(career_associate_id::text, ''), COALESCE(career_associate_manager_id::text, '')
        FROM clients WHERE id=$1`
	var c domain.Client
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.CareerAssociateID,
		&c.CareerAssociateManagerID,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
