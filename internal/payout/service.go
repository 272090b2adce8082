package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrForbidden is returned when a caller may not see or change an event
var ErrForbidden = errors.New("forbidden")

// Caller identifies who asks for payout events. Service callers are the
// payout integration; everyone else is a user seeing only their own payouts.
type Caller struct {
	UserID  int64
	Service bool
}

// Service handles payout event access rules
type Service struct {
	source Source
	now    func() time.Time
}

// NewService creates a new payout service
func NewService(source Source) *Service {
	return &Service{source: source, now: time.Now}
}

// List returns a page of events. Users only ever see events paying them.
func (s *Service) List(ctx context.Context, caller Caller, status EventStatus, limit, offset int) ([]*Event, int, error) {
	filter := ListFilter{Status: status}
	if !caller.Service {
		if caller.UserID <= 0 {
			return nil, 0, ErrForbidden
		}
		filter.WorkerID = caller.UserID
	}
	return s.source.List(ctx, filter, limit, offset)
}

// Get returns one event to the integration or to the worker it pays
func (s *Service) Get(ctx context.Context, caller Caller, id uuid.UUID) (*Event, error) {
	e, err := s.source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Service && (caller.UserID <= 0 || e.WorkerID != caller.UserID) {
		return nil, fmt.Errorf("%w: payout event %s", ErrForbidden, id)
	}
	return e, nil
}

// Ack marks an event delivered. Only the integration that carried out the
// payout may acknowledge it.
func (s *Service) Ack(ctx context.Context, caller Caller, id uuid.UUID) (*Event, error) {
	if !caller.Service {
		return nil, fmt.Errorf("%w: only the payout integration can acknowledge events", ErrForbidden)
	}
	if err := s.source.MarkDispatched(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.source.GetByID(ctx, id)
}
