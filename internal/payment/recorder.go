package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/fkhayef/milestonepay/internal/fee"
	"github.com/fkhayef/milestonepay/internal/payout"
)

// Recorder writes the transaction for an approved request together with its
// payout event. It never moves money.
type Recorder struct {
	now func() time.Time
}

// NewRecorder creates a new transaction recorder
func NewRecorder() *Recorder {
	return &Recorder{now: now}
}

// Record writes exactly one processed transaction for pr
func (r *Recorder) Record(ctx context.Context, tx Tx, pr *PaymentRequest, split fee.Split, workerID int64, currency string) (*Transaction, error) {
	if split.Amount != pr.Amount || split.PlatformFee+split.WorkerAmount != pr.Amount {
		return nil, fmt.Errorf("fee split %d+%d does not add up to amount %d", split.PlatformFee, split.WorkerAmount, pr.Amount)
	}

	t := &Transaction{
		PaymentRequestID: pr.ID,
		ServiceRequestID: pr.ServiceRequestID,
		Amount:           pr.Amount,
		PlatformFee:      split.PlatformFee,
		WorkerAmount:     split.WorkerAmount,
		Status:           TransactionStatusProcessed,
		Description:      pr.Description,
		CreatedAt:        r.now(),
	}
	if err := tx.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}

	event := payout.NewEvent(t.ID, pr.ID, pr.ServiceRequestID, workerID, t.WorkerAmount, currency, t.CreatedAt)
	if err := tx.RecordPayoutEvent(ctx, event); err != nil {
		return nil, err
	}
	return t, nil
}

// now returns the current time at the precision Postgres stores
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
