package job

import "errors"

// ErrJobNotFound is returned when a service request does not exist
var ErrJobNotFound = errors.New("service request not found")

// Status represents the lifecycle state of a service request.
// It is owned by the job-management subsystem; this service only reads it.
type Status string

const (
	StatusOpen       Status = "open"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// AcceptsPayments reports whether milestone payments may be requested or
// approved while the job is in this state
func (s Status) AcceptsPayments() bool {
	switch s {
	case StatusAccepted, StatusInProgress:
		return true
	case StatusOpen, StatusPending, StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

// Job is the payment-relevant view of a service request
type Job struct {
	ID       int64  `json:"id"`
	Budget   int64  `json:"budget"` // minor currency units
	Currency string `json:"currency"`
	Status   Status `json:"status"`
	WorkerID int64  `json:"worker_id"`
	ClientID int64  `json:"client_id"`
}

// IsParticipant reports whether userID is the job's worker or client
func (j *Job) IsParticipant(userID int64) bool {
	return userID == j.WorkerID || userID == j.ClientID
}
