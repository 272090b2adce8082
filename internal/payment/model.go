package payment

import (
	"fmt"
	"time"
)

// RequestStatus represents the state of a payment request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDeclined RequestStatus = "declined"
)

// IsTerminal reports whether no further transition is allowed
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusPending:
		return false
	case RequestStatusApproved, RequestStatusDeclined:
		return true
	default:
		return true
	}
}

// TransactionStatus represents the state of a recorded transaction
type TransactionStatus string

const (
	TransactionStatusProcessed TransactionStatus = "processed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Decision is the client's answer to a pending payment request
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

// ParseDecision validates a decision received from a caller
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApprove, DecisionDecline:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// PaymentRequest is a worker's claim against a service request budget.
// Amounts are in minor currency units.
type PaymentRequest struct {
	ID               int64         `json:"id"`
	ServiceRequestID int64         `json:"service_request_id"`
	RequestedBy      int64         `json:"requested_by"`
	Amount           int64         `json:"amount"`
	Description      string        `json:"description"`
	Status           RequestStatus `json:"status"`
	RequestedAt      time.Time     `json:"requested_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	DeclineReason    *string       `json:"decline_reason,omitempty"`
}

// Transaction is the immutable record of an approved payment
type Transaction struct {
	ID               int64             `json:"id"`
	PaymentRequestID int64             `json:"payment_request_id"`
	ServiceRequestID int64             `json:"service_request_id"`
	Amount           int64             `json:"amount"`
	PlatformFee      int64             `json:"platform_fee"`
	WorkerAmount     int64             `json:"worker_amount"`
	Status           TransactionStatus `json:"status"`
	Description      string            `json:"description"`
	CreatedAt        time.Time         `json:"created_at"`
}

// BudgetSummary is derived from the requests and transactions of one job
type BudgetSummary struct {
	TotalBudget           int64 `json:"total_budget"`
	AmountPaid            int64 `json:"amount_paid"`
	AmountPending         int64 `json:"amount_pending"`
	RemainingBudget       int64 `json:"remaining_budget"`
	UtilizationPercentage int64 `json:"utilization_percentage"`
}

// Snapshot is a consistent read of all payment rows for one job
type Snapshot struct {
	Requests     []*PaymentRequest
	Transactions []*Transaction
}

// History is the payment timeline of a job
type History struct {
	Summary         BudgetSummary
	PaymentRequests []*PaymentRequest
	Transactions    []*Transaction
}

// Resolution is the outcome of resolving a payment request.
// Transaction is nil for declines.
type Resolution struct {
	Request     *PaymentRequest
	Transaction *Transaction
}
