package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEventNotFound is returned when no payout event matches an ID
var ErrEventNotFound = errors.New("payout event not found")

// Source is the outbox the dispatcher and the HTTP handler read from
type Source interface {
	ListPending(ctx context.Context, limit int) ([]*Event, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Event, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// ListFilter narrows List. Zero fields match every event.
type ListFilter struct {
	Status   EventStatus
	WorkerID int64
}

func (f ListFilter) match(e *Event) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return f.WorkerID == 0 || e.WorkerID == f.WorkerID
}

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Insert writes an event using the caller's transaction
func Insert(ctx context.Context, exec Execer, e *Event) error {
	query := `
		INSERT INTO payout_events (id, transaction_id, payment_request_id, service_request_id,
		                           worker_id, worker_amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := exec.ExecContext(ctx, query,
		e.ID,
		e.TransactionID,
		e.PaymentRequestID,
		e.ServiceRequestID,
		e.WorkerID,
		e.WorkerAmount,
		e.Currency,
		e.Status,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout event: %w", err)
	}
	return nil
}

const eventColumns = `id, transaction_id, payment_request_id, service_request_id, worker_id,
	worker_amount, currency, status, attempts, last_error, created_at, dispatched_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	e := &Event{}
	err := row.Scan(
		&e.ID,
		&e.TransactionID,
		&e.PaymentRequestID,
		&e.ServiceRequestID,
		&e.WorkerID,
		&e.WorkerAmount,
		&e.Currency,
		&e.Status,
		&e.Attempts,
		&e.LastError,
		&e.CreatedAt,
		&e.DispatchedAt,
	)
	return e, err
}

// Repository handles payout event persistence in Postgres
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new payout event repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListPending returns the oldest undelivered events
func (r *Repository) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM payout_events
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, EventStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payout events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// List retrieves events matching filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Event, int, error) {
	where := `WHERE ($1::text = '' OR status = $1::text) AND ($2::bigint = 0 OR worker_id = $2::bigint)`

	var total int
	countQuery := `SELECT COUNT(*) FROM payout_events ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, filter.Status, filter.WorkerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payout events: %w", err)
	}

	query := `SELECT ` + eventColumns + `
		FROM payout_events ` + where + `
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, filter.Status, filter.WorkerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payout events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payout event: %w", err)
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// GetByID retrieves a single event
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM payout_events WHERE id = $1`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get payout event: %w", err)
	}
	return e, nil
}

// MarkDispatched flags an event as delivered. Acknowledging twice keeps the
// first dispatch time.
func (r *Repository) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE payout_events
		SET status = $2, dispatched_at = COALESCE(dispatched_at, $3)
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, EventStatusDispatched, at)
	if err != nil {
		return fmt.Errorf("failed to mark payout event dispatched: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkAttemptFailed records a failed delivery; the event stays pending
func (r *Repository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE payout_events
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND status = $3
	`
	if _, err := r.db.ExecContext(ctx, query, id, reason, EventStatusPending); err != nil {
		return fmt.Errorf("failed to record payout attempt: %w", err)
	}
	return nil
}

// MemoryOutbox is an in-process Source used with the memory store backend
type MemoryOutbox struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*Event
}

// NewMemoryOutbox creates an empty outbox
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{events: make(map[uuid.UUID]*Event)}
}

// Append stores events. Callers append only after their transaction commits.
func (o *MemoryOutbox) Append(events ...*Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range events {
		cp := *e
		o.events[e.ID] = &cp
	}
}

func (o *MemoryOutbox) sorted(newestFirst bool, keep func(*Event) bool) []*Event {
	var out []*Event
	for _, e := range o.events {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ListPending returns the oldest undelivered events
func (o *MemoryOutbox) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := o.sorted(false, func(e *Event) bool { return e.Status == EventStatusPending })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List retrieves events matching filter, newest first
func (o *MemoryOutbox) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Event, int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := o.sorted(true, filter.match)
	total := len(out)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// GetByID retrieves a single event
func (o *MemoryOutbox) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkDispatched flags an event as delivered
func (o *MemoryOutbox) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.Status = EventStatusDispatched
	if e.DispatchedAt == nil {
		e.DispatchedAt = &at
	}
	return nil
}

// MarkAttemptFailed records a failed delivery; the event stays pending
func (o *MemoryOutbox) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.events[id]
	if !ok || e.Status != EventStatusPending {
		return nil
	}
	e.Attempts++
	e.LastError = &reason
	return nil
}
