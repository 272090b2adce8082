package payment

import (
	"context"
	"time"

	"github.com/fkhayef/milestonepay/internal/payout"
)

// Store persists payment requests and transactions.
// Implemented by Repository (Postgres) and MemoryStore.
type Store interface {
	// GetPaymentRequest returns nil, nil when the request does not exist
	GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error)
	Snapshot(ctx context.Context, serviceRequestID int64) (*Snapshot, error)

	// WithinJob runs fn in a transaction serialized with every other write
	// for the same service request. Any error from fn rolls back all writes.
	WithinJob(ctx context.Context, serviceRequestID int64, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write surface available inside WithinJob. Reads observe the
// transaction's own writes.
type Tx interface {
	GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error)
	ListPaymentRequests(ctx context.Context, serviceRequestID int64) ([]*PaymentRequest, error)
	ListTransactions(ctx context.Context, serviceRequestID int64) ([]*Transaction, error)

	// CreatePaymentRequest stores pr and sets its ID
	CreatePaymentRequest(ctx context.Context, pr *PaymentRequest) error
	// ResolvePaymentRequest moves a pending request to a terminal status.
	// It returns ErrAlreadyResolved when the request is no longer pending.
	ResolvePaymentRequest(ctx context.Context, id int64, status RequestStatus, at time.Time, reason *string) error
	// CreateTransaction stores t and sets its ID. It returns
	// ErrDuplicateTransaction when the payment request already has one.
	CreateTransaction(ctx context.Context, t *Transaction) error
	RecordPayoutEvent(ctx context.Context, e *payout.Event) error
}
