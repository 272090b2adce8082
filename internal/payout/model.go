package payout

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the delivery state of a payout event
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusDispatched EventStatus = "dispatched"
)

// Event is an outbox record written in the same database transaction as the
// settled payment transaction it announces
type Event struct {
	ID               uuid.UUID   `json:"id"`
	TransactionID    int64       `json:"transaction_id"`
	PaymentRequestID int64       `json:"payment_request_id"`
	ServiceRequestID int64       `json:"service_request_id"`
	WorkerID         int64       `json:"worker_id"`
	WorkerAmount     int64       `json:"worker_amount"`
	Currency         string      `json:"currency"`
	Status           EventStatus `json:"status"`
	Attempts         int         `json:"attempts"`
	LastError        *string     `json:"last_error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	DispatchedAt     *time.Time  `json:"dispatched_at,omitempty"`
}

// Payload is the body handed to the downstream payout integration
type Payload struct {
	EventID       string `json:"event_id"`
	TransactionID int64  `json:"transaction_id"`
	WorkerID      int64  `json:"worker_id"`
	WorkerAmount  int64  `json:"worker_amount"`
	Currency      string `json:"currency"`
}

// NewEvent creates a pending payout event for a recorded transaction
func NewEvent(transactionID, paymentRequestID, serviceRequestID, workerID, workerAmount int64, currency string, at time.Time) *Event {
	return &Event{
		ID:               uuid.New(),
		TransactionID:    transactionID,
		PaymentRequestID: paymentRequestID,
		ServiceRequestID: serviceRequestID,
		WorkerID:         workerID,
		WorkerAmount:     workerAmount,
		Currency:         currency,
		Status:           EventStatusPending,
		CreatedAt:        at,
	}
}

// Payload returns the downstream representation of the event
func (e *Event) Payload() Payload {
	return Payload{
		EventID:       e.ID.String(),
		TransactionID: e.TransactionID,
		WorkerID:      e.WorkerID,
		WorkerAmount:  e.WorkerAmount,
		Currency:      e.Currency,
	}
}
