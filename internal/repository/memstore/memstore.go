// Package memstore is an in-process repository.Store used when no database is
// configured and by tests. Atomic works on a copy of the data and swaps it in
// on success, so an aborted unit of work leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// Operation names accepted by FailOn.
const (
	OpTicketCreate     = "tickets.create"
	OpTicketUpdate     = "tickets.update"
	OpTicketRead       = "tickets.read"
	OpCommentInsert    = "comments.insert"
	OpFileInsert       = "files.insert"
	OpAssignmentUpsert = "assignments.upsert"
	OpEscalationInsert = "escalations.insert"
	OpSubmissionInsert = "submissions.insert"
	OpAtomic           = "atomic"
)

type data struct {
	tickets     map[string]domain.Ticket
	comments    []domain.Comment
	files       []domain.FileAttachment
	assignments []domain.Assignment
	escalations []domain.Escalation
	submissions map[string]domain.SubmissionRecord
	users       map[string]domain.User
	clients     map[string]domain.Client
}

func newData() *data {
	return &data{
		tickets:     make(map[string]domain.Ticket),
		submissions: make(map[string]domain.SubmissionRecord),
		users:       make(map[string]domain.User),
		clients:     make(map[string]domain.Client),
	}
}

func (d *data) clone() *data {
	out := newData()
	for k, v := range d.tickets {
		out.tickets[k] = v.Clone()
	}
	for k, v := range d.submissions {
		out.submissions[k] = v
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.clients {
		out.clients[k] = v
	}
	out.comments = append(out.comments, d.comments...)
	out.files = append(out.files, d.files...)
	out.assignments = append(out.assignments, d.assignments...)
	out.escalations = append(out.escalations, d.escalations...)
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu       *sync.Mutex
	d        *data
	feed     events.Feed
	failures map[string]error
	now      func() time.Time
	ids      func() string

	inTx    bool
	pending []events.ChangeEvent
}

// Option configures a Store.
type Option func(*Store)

// WithFeed publishes a change event for every committed write.
func WithFeed(feed events.Feed) Option {
	return func(s *Store) { s.feed = feed }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides ticket id generation.
func WithIDs(ids func() string) Option {
	return func(s *Store) { s.ids = ids }
}

// New builds an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		mu:       &sync.Mutex{},
		d:        newData(),
		failures: make(map[string]error),
		now:      func() time.Time { return time.Now().UTC() },
		ids:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailOn makes every later call of op return err until Heal is called.
func (s *Store) FailOn(op string, err error) {
	s.lock()
	defer s.unlock()
	s.failures[op] = err
}

// Heal clears an injected failure.
func (s *Store) Heal(op string) {
	s.lock()
	defer s.unlock()
	delete(s.failures, op)
}

// PutUser seeds the directory.
func (s *Store) PutUser(u domain.User) {
	s.lock()
	defer s.unlock()
	s.d.users[u.ID] = u
}

// PutClient seeds the directory.
func (s *Store) PutClient(c domain.Client) {
	s.lock()
	defer s.unlock()
	s.d.clients[c.ID] = c
}

// PutTicket stores a ticket verbatim, bypassing id and timestamp assignment.
func (s *Store) PutTicket(t domain.Ticket) {
	s.lock()
	defer s.unlock()
	s.d.tickets[t.ID] = t.Clone()
}

func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }
func (s *Store) Comments() repository.CommentRepository { return commentRepo{s} }
func (s *Store) Files() repository.FileRepository { return fileRepo{s} }
func (s *Store) Assignments() repository.AssignmentRepository { return assignmentRepo{s} }
func (s *Store) Escalations() repository.EscalationRepository { return escalationRepo{s} }
func (s *Store) Submissions() repository.SubmissionRepository { return submissionRepo{s} }
func (s *Store) Directory() repository.DirectoryRepository { return directoryRepo{s} }

// Atomic serializes units of work and commits by swapping in the working copy.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	if err := s.failures[OpAtomic]; err != nil {
		s.mu.Unlock()
		return err
	}
	tx := &Store{
		mu:       &sync.Mutex{},
		d:        s.d.clone(),
		failures: s.failures,
		now:      s.now,
		ids:      s.ids,
		inTx:     true,
	}
	if err := fn(ctx, tx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.d = tx.d
	s.mu.Unlock()

	for _, ev := range tx.pending {
		s.publish(ctx, ev)
	}
	return nil
}

// lock guards direct (non-transactional) access. Inside Atomic the working copy
// has its own mutex and the parent lock is already held.
func (s *Store) lock() { s.mu.Lock() }
func (s *Store) unlock() { s.mu.Unlock() }

func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (s *Store) record(ctx context.Context, table events.Table, op events.Op, rowID, ticketID string) {
	ev := events.ChangeEvent{Table: table, Op: op, RowID: rowID, TicketID: ticketID, Timestamp: s.now()}
	if s.inTx {
		s.pending = append(s.pending, ev)
		return
	}
	s.publish(ctx, ev)
}

func (s *Store) publish(ctx context.Context, ev events.ChangeEvent) {
	if s.feed != nil {
		_ = s.feed.Publish(ctx, ev)
	}
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(ctx context.Context, t *domain.Ticket) error {
	r.s.lock()
	if err := r.s.fail(OpTicketCreate); err != nil {
		r.s.unlock()
		return err
	}
	if t.ID == "" {
		t.ID = r.s.ids()
	}
	now := r.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	r.s.d.tickets[t.ID] = t.Clone()
	r.s.unlock()

	r.s.record(ctx, events.TableTickets, events.OpInsert, t.ID, t.ID)
	return nil
}

func (r ticketRepo) Update(ctx context.Context, t *domain.Ticket) error {
	r.s.lock()
	if err := r.s.fail(OpTicketUpdate); err != nil {
		r.s.unlock()
		return err
	}
	current, ok := r.s.d.tickets[t.ID]
	if !ok {
		r.s.unlock()
		return pgx.ErrNoRows
	}
	current.Status = t.Status
	current.EscalationLevel = t.EscalationLevel
	current.Metadata = t.Clone().Metadata
	current.RequiredManagerAttention = t.RequiredManagerAttention
	current.CAConfirmed = t.CAConfirmed
	current.CATeamLeadConfirmed = t.CATeamLeadConfirmed
	current.UpdatedAt = r.s.now()
	t.UpdatedAt = current.UpdatedAt
	r.s.d.tickets[t.ID] = current
	r.s.unlock()

	r.s.record(ctx, events.TableTickets, events.OpUpdate, t.ID, t.ID)
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.lock()
	defer r.s.unlock()
	if err := r.s.fail(OpTicketRead); err != nil {
		return nil, err
	}
	t, ok := r.s.d.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := t.Clone()
	return &out, nil
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.lock()
	defer r.s.unlock()
	if err := r.s.fail(OpTicketRead); err != nil {
		return nil, err
	}

	ids := toSet(filter.IDs)
	var result []domain.Ticket
	for _, t := range r.s.d.tickets {
		if len(filter.IDs) > 0 && !ids[t.ID] {
			continue
		}
		if filter.ClientID != nil && t.ClientID != *filter.ClientID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, t.Type) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

type commentRepo struct{ s *Store }

func (r commentRepo) Insert(ctx context.Context, c *domain.Comment) (bool, error) {
	r.s.lock()
	if err := r.s.fail(OpCommentInsert); err != nil {
		r.s.unlock()
		return false, err
	}
	for _, existing := range r.s.d.comments {
		if existing.ID == c.ID {
			r.s.unlock()
			return false, nil
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.d.comments = append(r.s.d.comments, *c)
	r.s.unlock()

	r.s.record(ctx, events.TableComments, events.OpInsert, c.ID, c.TicketID)
	return true, nil
}

func (r commentRepo) GetByID(_ context.Context, id string) (*domain.Comment, error) {
	r.s.lock()
	defer r.s.unlock()
	for _, c := range r.s.d.comments {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r commentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	r.s.lock()
	defer r.s.unlock()
	var result []domain.Comment
	for _, c := range r.s.d.comments {
		if c.TicketID == ticketID {
			result = append(result, c)
		}
	}
	return result, nil
}

type fileRepo struct{ s *Store }

func (r fileRepo) Insert(ctx context.Context, f *domain.FileAttachment) (bool, error) {
	r.s.lock()
	if err := r.s.fail(OpFileInsert); err != nil {
		r.s.unlock()
		return false, err
	}
	for _, existing := range r.s.d.files {
		if existing.ID == f.ID {
			r.s.unlock()
			return false, nil
		}
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = r.s.now()
	}
	r.s.d.files = append(r.s.d.files, *f)
	r.s.unlock()

	r.s.record(ctx, events.TableFiles, events.OpInsert, f.ID, f.TicketID)
	return true, nil
}

func (r fileRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.FileAttachment, error) {
	r.s.lock()
	defer r.s.unlock()
	var result []domain.FileAttachment
	for _, f := range r.s.d.files {
		if f.TicketID == ticketID {
			result = append(result, f)
		}
	}
	return result, nil
}

type assignmentRepo struct{ s *Store }

func (r assignmentRepo) Upsert(ctx context.Context, a *domain.Assignment) error {
	r.s.lock()
	if err := r.s.fail(OpAssignmentUpsert); err != nil {
		r.s.unlock()
		return err
	}
	for _, existing := range r.s.d.assignments {
		if existing.TicketID == a.TicketID && existing.UserID == a.UserID {
			r.s.unlock()
			return nil
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.s.now()
	}
	r.s.d.assignments = append(r.s.d.assignments, *a)
	r.s.unlock()

	r.s.record(ctx, events.TableAssignments, events.OpInsert, a.TicketID+":"+a.UserID, a.TicketID)
	return nil
}

func (r assignmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Assignment, error) {
	r.s.lock()
	defer r.s.unlock()
	var result []domain.Assignment
	for _, a := range r.s.d.assignments {
		if a.TicketID == ticketID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r assignmentRepo) ListAll(_ context.Context) ([]domain.Assignment, error) {
	r.s.lock()
	defer r.s.unlock()
	return append([]domain.Assignment(nil), r.s.d.assignments...), nil
}

type escalationRepo struct{ s *Store }

func (r escalationRepo) Insert(ctx context.Context, e *domain.Escalation) (bool, error) {
	r.s.lock()
	if err := r.s.fail(OpEscalationInsert); err != nil {
		r.s.unlock()
		return false, err
	}
	for _, existing := range r.s.d.escalations {
		if existing.ID == e.ID {
			r.s.unlock()
			return false, nil
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.s.now()
	}
	r.s.d.escalations = append(r.s.d.escalations, *e)
	r.s.unlock()

	r.s.record(ctx, events.TableEscalations, events.OpInsert, e.ID, e.TicketID)
	return true, nil
}

func (r escalationRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Escalation, error) {
	r.s.lock()
	defer r.s.unlock()
	var result []domain.Escalation
	for _, e := range r.s.d.escalations {
		if e.TicketID == ticketID {
			result = append(result, e)
		}
	}
	return result, nil
}

type submissionRepo struct{ s *Store }

func (r submissionRepo) Insert(_ context.Context, rec *domain.SubmissionRecord) (bool, error) {
	r.s.lock()
	defer r.s.unlock()
	if err := r.s.fail(OpSubmissionInsert); err != nil {
		return false, err
	}
	if _, ok := r.s.d.submissions[rec.Key]; ok {
		return false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.s.now()
	}
	r.s.d.submissions[rec.Key] = *rec
	return true, nil
}

func (r submissionRepo) GetByKey(_ context.Context, key string) (*domain.SubmissionRecord, error) {
	r.s.lock()
	defer r.s.unlock()
	rec, ok := r.s.d.submissions[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rec, nil
}

type directoryRepo struct{ s *Store }

func (r directoryRepo) GetUser(_ context.Context, id string) (*domain.User, error) {
	r.s.lock()
	defer r.s.unlock()
	u, ok := r.s.d.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r directoryRepo) ListUsers(_ context.Context) ([]domain.User, error) {
	r.s.lock()
	defer r.s.unlock()
	result := make([]domain.User, 0, len(r.s.d.users))
	for _, u := range r.s.d.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r directoryRepo) GetClient(_ context.Context, id string) (*domain.Client, error) {
	r.s.lock()
	defer r.s.unlock()
	c, ok := r.s.d.clients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func containsType(types []domain.TicketType, t domain.TicketType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
