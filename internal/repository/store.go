package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the workflow repositories behind one handle so a unit of work can
// swap every repository onto the same transaction.
type Store interface {
	Tickets() TicketRepository
	Comments() CommentRepository
	Files() FileRepository
	Assignments() AssignmentRepository
	Escalations() EscalationRepository
	Submissions() SubmissionRepository
	Directory() DirectoryRepository

	// Atomic runs fn against a transactional Store. Nothing fn wrote is visible
	// if it returns an error.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

type pgStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewStore returns a Postgres-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, db: pool}
}

func (s *pgStore) Tickets() TicketRepository { return &ticketRepository{db: s.db} }
func (s *pgStore) Comments() CommentRepository { return &commentRepository{db: s.db} }
func (s *pgStore) Files() FileRepository { return &fileRepository{db: s.db} }
func (s *pgStore) Assignments() AssignmentRepository { return &assignmentRepository{db: s.db} }
func (s *pgStore) Escalations() EscalationRepository { return &escalationRepository{db: s.db} }
func (s *pgStore) Submissions() SubmissionRepository { return &submissionRepository{db: s.db} }
func (s *pgStore) Directory() DirectoryRepository { return &directoryRepository{db: s.db} }

func (s *pgStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.pool == nil {
		// already inside a transaction
		return fn(ctx, s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgStore{db: tx})
	})
}
