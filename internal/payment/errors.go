package payment

import (
	"errors"

	"github.com/fkhayef/milestonepay/internal/fee"
)

// Common errors. Each kind maps to its own HTTP status and error code.
var (
	ErrInvalidAmount        = fee.ErrInvalidAmount
	ErrInvalidDescription   = errors.New("invalid description")
	ErrInvalidState         = errors.New("service request does not accept payments in its current state")
	ErrUnauthorized         = errors.New("not permitted for this service request")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyResolved      = errors.New("payment request already resolved")
	ErrDuplicateTransaction = errors.New("transaction already recorded for payment request")
	ErrTransactionFailed    = errors.New("transaction failed")
	ErrBudgetExceeded       = errors.New("amount exceeds remaining budget")
	ErrInvalidDecision      = errors.New("decision must be approve or decline")
	ErrRetryable            = errors.New("temporarily unavailable")
)
