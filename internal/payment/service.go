package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fkhayef/milestonepay/internal/fee"
	"github.com/fkhayef/milestonepay/internal/job"
)

// DefaultMaxDescriptionLength bounds descriptions and decline reasons, in runes
const DefaultMaxDescriptionLength = 500

// JobReader looks up service requests owned by job management
type JobReader interface {
	GetJob(ctx context.Context, id int64) (*job.Job, error)
}

// Options tunes the payment service
type Options struct {
	MaxDescriptionLength int
	Currency             string
}

// Service handles payment request business logic
type Service struct {
	store      Store
	jobs       JobReader
	gateway    *Gateway
	maxDescLen int
	now        func() time.Time
}

// NewService creates a new payment service
func NewService(store Store, jobs JobReader, fees *fee.Calculator, opts Options) *Service {
	if opts.MaxDescriptionLength <= 0 {
		opts.MaxDescriptionLength = DefaultMaxDescriptionLength
	}
	return &Service{
		store:      store,
		jobs:       jobs,
		gateway:    NewGateway(fees, NewRecorder(), opts.Currency),
		maxDescLen: opts.MaxDescriptionLength,
		now:        now,
	}
}

// CreateRequestInput carries a worker's payment request
type CreateRequestInput struct {
	ServiceRequestID int64
	RequestedBy      int64
	Amount           int64
	Description      string
}

// ResolveRequestInput carries a client's decision
type ResolveRequestInput struct {
	RequestID     int64
	ResolvedBy    int64
	Decision      string
	DeclineReason *string
}

func (s *Service) loadJob(ctx context.Context, id int64) (*job.Job, error) {
	j, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return nil, fmt.Errorf("%w: service request %d", ErrNotFound, id)
		}
		return nil, err
	}
	return j, nil
}

func (s *Service) loadRequest(ctx context.Context, id int64) (*PaymentRequest, error) {
	pr, err := s.store.GetPaymentRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if pr == nil {
		return nil, fmt.Errorf("%w: payment request %d", ErrNotFound, id)
	}
	return pr, nil
}

// CreateRequest records a pending claim by the job's assigned worker.
// The budget check and the insert happen under the job's lock, so
// concurrent requests can never reserve more than the budget.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*PaymentRequest, error) {
	j, err := s.loadJob(ctx, in.ServiceRequestID)
	if err != nil {
		return nil, err
	}
	if j.WorkerID == 0 || in.RequestedBy != j.WorkerID {
		return nil, fmt.Errorf("%w: only the assigned worker can request payment", ErrUnauthorized)
	}
	if !j.Status.AcceptsPayments() {
		return nil, fmt.Errorf("%w: service request %d is %s", ErrInvalidState, j.ID, j.Status)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	description, err := s.validateText(in.Description, "description")
	if err != nil {
		return nil, err
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidDescription)
	}

	pr := &PaymentRequest{
		ServiceRequestID: j.ID,
		RequestedBy:      in.RequestedBy,
		Amount:           in.Amount,
		Description:      description,
		Status:           RequestStatusPending,
	}

	err = s.store.WithinJob(ctx, j.ID, func(ctx context.Context, tx Tx) error {
		requests, err := tx.ListPaymentRequests(ctx, j.ID)
		if err != nil {
			return err
		}
		txs, err := tx.ListTransactions(ctx, j.ID)
		if err != nil {
			return err
		}
		summary := Summarize(j.Budget, requests, txs)
		if in.Amount > summary.RemainingBudget {
			return fmt.Errorf("%w: requested %d, remaining %d", ErrBudgetExceeded, in.Amount, summary.RemainingBudget)
		}

		pr.RequestedAt = s.now()
		return tx.CreatePaymentRequest(ctx, pr)
	})
	if err != nil {
		return nil, err
	}

	requestsCreatedTotal.Inc()
	return pr, nil
}

// ResolveRequest applies the client's decision to a pending request
func (s *Service) ResolveRequest(ctx context.Context, in ResolveRequestInput) (res *Resolution, err error) {
	decision, err := ParseDecision(in.Decision)
	if err != nil {
		return nil, err
	}
	defer func() {
		resolutionsTotal.WithLabelValues(string(decision), outcome(err)).Inc()
	}()

	pr, err := s.loadRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	j, err := s.loadJob(ctx, pr.ServiceRequestID)
	if err != nil {
		return nil, err
	}
	if in.ResolvedBy != j.ClientID {
		return nil, fmt.Errorf("%w: only the client can resolve payment requests", ErrUnauthorized)
	}
	if pr.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: request %d is %s", ErrAlreadyResolved, pr.ID, pr.Status)
	}

	var reason *string
	if decision == DecisionDecline && in.DeclineReason != nil {
		text, err := s.validateText(*in.DeclineReason, "decline reason")
		if err != nil {
			return nil, err
		}
		if text != "" {
			reason = &text
		}
	}

	err = s.store.WithinJob(ctx, j.ID, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetPaymentRequest(ctx, pr.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: payment request %d", ErrNotFound, pr.ID)
		}
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: request %d is %s", ErrAlreadyResolved, current.ID, current.Status)
		}

		switch decision {
		case DecisionApprove:
			fresh, err := s.loadJob(ctx, j.ID)
			if err != nil {
				return err
			}
			res, err = s.gateway.Approve(ctx, tx, fresh, current)
			return err
		case DecisionDecline:
			at := s.now()
			if err := tx.ResolvePaymentRequest(ctx, current.ID, RequestStatusDeclined, at, reason); err != nil {
				return err
			}
			declined := *current
			declined.Status = RequestStatusDeclined
			declined.ResolvedAt = &at
			declined.DeclineReason = reason
			res = &Resolution{Request: &declined}
			return nil
		default:
			return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
		}
	})
	if err != nil {
		return nil, err
	}

	if res.Transaction != nil {
		platformFeesTotal.Add(float64(res.Transaction.PlatformFee))
	}
	return res, nil
}

// GetRequest returns a payment request to one of its job's participants
func (s *Service) GetRequest(ctx context.Context, actorID, id int64) (*PaymentRequest, error) {
	pr, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeParticipant(ctx, actorID, pr.ServiceRequestID); err != nil {
		return nil, err
	}
	return pr, nil
}

// Summary returns the current budget position of a job
func (s *Service) Summary(ctx context.Context, actorID, serviceRequestID int64) (*BudgetSummary, error) {
	history, err := s.GetHistory(ctx, actorID, serviceRequestID)
	if err != nil {
		return nil, err
	}
	return &history.Summary, nil
}

// GetHistory returns the summary and the full payment timeline of a job
func (s *Service) GetHistory(ctx context.Context, actorID, serviceRequestID int64) (*History, error) {
	j, err := s.authorizeParticipant(ctx, actorID, serviceRequestID)
	if err != nil {
		return nil, err
	}

	snap, err := s.store.Snapshot(ctx, serviceRequestID)
	if err != nil {
		return nil, err
	}
	return AssembleHistory(j.Budget, snap), nil
}

func (s *Service) authorizeParticipant(ctx context.Context, actorID, serviceRequestID int64) (*job.Job, error) {
	j, err := s.loadJob(ctx, serviceRequestID)
	if err != nil {
		return nil, err
	}
	if !j.IsParticipant(actorID) {
		return nil, fmt.Errorf("%w: not a participant of service request %d", ErrUnauthorized, serviceRequestID)
	}
	return j, nil
}

// validateText trims text and enforces the length limit
func (s *Service) validateText(text, field string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > s.maxDescLen {
		return "", fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidDescription, field, s.maxDescLen)
	}
	return text, nil
}
