package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/fkhayef/milestonepay/internal/fee"
	"github.com/fkhayef/milestonepay/internal/job"
)

// Gateway turns a pending request into a recorded transaction
type Gateway struct {
	fees     *fee.Calculator
	recorder *Recorder
	currency string
}

// NewGateway creates an approval gateway. currency is used for jobs that do
// not carry their own.
func NewGateway(fees *fee.Calculator, recorder *Recorder, currency string) *Gateway {
	return &Gateway{fees: fees, recorder: recorder, currency: currency}
}

// Approve must run inside WithinJob for pr's job. The request is marked
// approved only after its transaction has been written; on any failure the
// caller's transaction rolls back and pr stays pending.
func (g *Gateway) Approve(ctx context.Context, tx Tx, j *job.Job, pr *PaymentRequest) (*Resolution, error) {
	if !j.Status.AcceptsPayments() {
		return nil, fmt.Errorf("%w: service request %d is %s", ErrInvalidState, j.ID, j.Status)
	}

	requests, err := tx.ListPaymentRequests(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	txs, err := tx.ListTransactions(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	// remaining already accounts for pr's own reservation
	if summary := Summarize(j.Budget, requests, txs); summary.RemainingBudget < 0 {
		return nil, fmt.Errorf("%w: remaining budget is %d", ErrBudgetExceeded, summary.RemainingBudget)
	}

	split, err := g.fees.Split(pr.Amount)
	if err != nil {
		return nil, err
	}

	currency := j.Currency
	if currency == "" {
		currency = g.currency
	}

	t, err := g.recorder.Record(ctx, tx, pr, split, j.WorkerID, currency)
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) || errors.Is(err, ErrRetryable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	if err := tx.ResolvePaymentRequest(ctx, pr.ID, RequestStatusApproved, t.CreatedAt, nil); err != nil {
		return nil, err
	}

	approved := *pr
	approved.Status = RequestStatusApproved
	approved.ResolvedAt = &t.CreatedAt
	approved.DeclineReason = nil

	return &Resolution{Request: &approved, Transaction: t}, nil
}
