package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fkhayef/milestonepay/internal/payout"
)

// MemoryStore keeps payment rows in process memory. Writes for one job are
// serialized by a per-job mutex and applied only when the callback succeeds.
type MemoryStore struct {
	mu            sync.RWMutex
	requests      map[int64]*PaymentRequest
	transactions  map[int64]*Transaction
	txByRequest   map[int64]int64
	nextRequestID int64
	nextTxID      int64

	locksMu  sync.Mutex
	jobLocks map[int64]*sync.Mutex

	outbox *payout.MemoryOutbox
}

// NewMemoryStore creates an empty store. Committed payout events are
// appended to outbox.
func NewMemoryStore(outbox *payout.MemoryOutbox) *MemoryStore {
	return &MemoryStore{
		requests:     make(map[int64]*PaymentRequest),
		transactions: make(map[int64]*Transaction),
		txByRequest:  make(map[int64]int64),
		jobLocks:     make(map[int64]*sync.Mutex),
		outbox:       outbox,
	}
}

func (s *MemoryStore) jobLock(id int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.jobLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.jobLocks[id] = l
	}
	return l
}

// GetPaymentRequest returns a copy of the request, or nil if unknown
func (s *MemoryStore) GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *pr
	return &cp, nil
}

// Snapshot returns copies of every row for the job
func (s *MemoryStore) Snapshot(ctx context.Context, serviceRequestID int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{
		Requests:     s.requestsFor(serviceRequestID, nil),
		Transactions: s.transactionsFor(serviceRequestID, nil),
	}, nil
}

// requestsFor must be called with s.mu held
func (s *MemoryStore) requestsFor(jobID int64, staged map[int64]*PaymentRequest) []*PaymentRequest {
	var out []*PaymentRequest
	for id, pr := range s.requests {
		if pr.ServiceRequestID != jobID {
			continue
		}
		if st, ok := staged[id]; ok {
			pr = st
		}
		cp := *pr
		out = append(out, &cp)
	}
	for id, pr := range staged {
		if _, exists := s.requests[id]; exists || pr.ServiceRequestID != jobID {
			continue
		}
		cp := *pr
		out = append(out, &cp)
	}
	return out
}

// transactionsFor must be called with s.mu held
func (s *MemoryStore) transactionsFor(jobID int64, staged []*Transaction) []*Transaction {
	var out []*Transaction
	for _, t := range s.transactions {
		if t.ServiceRequestID == jobID {
			cp := *t
			out = append(out, &cp)
		}
	}
	for _, t := range staged {
		if t.ServiceRequestID == jobID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// WithinJob runs fn under the job's mutex and commits its writes if fn
// returns nil
func (s *MemoryStore) WithinJob(ctx context.Context, serviceRequestID int64, fn func(ctx context.Context, tx Tx) error) error {
	l := s.jobLock(serviceRequestID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}

	tx := &memoryTx{
		store:    s,
		jobID:    serviceRequestID,
		requests: make(map[int64]*PaymentRequest),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	for id, pr := range tx.requests {
		s.requests[id] = pr
	}
	for _, t := range tx.transactions {
		s.transactions[t.ID] = t
		s.txByRequest[t.PaymentRequestID] = t.ID
	}
	s.mu.Unlock()

	if s.outbox != nil && len(tx.events) > 0 {
		s.outbox.Append(tx.events...)
	}
	return nil
}

// memoryTx stages writes until WithinJob commits them
type memoryTx struct {
	store        *MemoryStore
	jobID        int64
	requests     map[int64]*PaymentRequest
	transactions []*Transaction
	events       []*payout.Event
}

func (tx *memoryTx) GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error) {
	if pr, ok := tx.requests[id]; ok {
		cp := *pr
		return &cp, nil
	}
	return tx.store.GetPaymentRequest(ctx, id)
}

func (tx *memoryTx) ListPaymentRequests(ctx context.Context, serviceRequestID int64) ([]*PaymentRequest, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.requestsFor(serviceRequestID, tx.requests), nil
}

func (tx *memoryTx) ListTransactions(ctx context.Context, serviceRequestID int64) ([]*Transaction, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.transactionsFor(serviceRequestID, tx.transactions), nil
}

func (tx *memoryTx) CreatePaymentRequest(ctx context.Context, pr *PaymentRequest) error {
	if pr.ServiceRequestID != tx.jobID {
		return fmt.Errorf("payment request for service request %d written under lock for %d", pr.ServiceRequestID, tx.jobID)
	}
	tx.store.mu.Lock()
	tx.store.nextRequestID++
	pr.ID = tx.store.nextRequestID
	tx.store.mu.Unlock()

	cp := *pr
	tx.requests[pr.ID] = &cp
	return nil
}

func (tx *memoryTx) ResolvePaymentRequest(ctx context.Context, id int64, status RequestStatus, at time.Time, reason *string) error {
	pr, err := tx.GetPaymentRequest(ctx, id)
	if err != nil {
		return err
	}
	if pr == nil {
		return fmt.Errorf("%w: payment request %d", ErrNotFound, id)
	}
	if pr.Status != RequestStatusPending {
		return ErrAlreadyResolved
	}
	pr.Status = status
	pr.ResolvedAt = &at
	pr.DeclineReason = reason
	tx.requests[id] = pr
	return nil
}

func (tx *memoryTx) CreateTransaction(ctx context.Context, t *Transaction) error {
	for _, staged := range tx.transactions {
		if staged.PaymentRequestID == t.PaymentRequestID {
			return ErrDuplicateTransaction
		}
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if _, exists := tx.store.txByRequest[t.PaymentRequestID]; exists {
		return ErrDuplicateTransaction
	}
	tx.store.nextTxID++
	t.ID = tx.store.nextTxID

	cp := *t
	tx.transactions = append(tx.transactions, &cp)
	return nil
}

func (tx *memoryTx) RecordPayoutEvent(ctx context.Context, e *payout.Event) error {
	cp := *e
	tx.events = append(tx.events, &cp)
	return nil
}
