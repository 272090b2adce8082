package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fkhayef/milestonepay/internal/payout"
)

// Postgres SQLSTATE codes
const (
	pqUniqueViolation      = "23505"
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles payment data persistence in Postgres
type Repository struct {
	db          *sql.DB
	txTimeout   time.Duration
	lockTimeout time.Duration
}

// NewRepository creates a new payment repository
func NewRepository(db *sql.DB, txTimeout, lockTimeout time.Duration) *Repository {
	return &Repository{db: db, txTimeout: txTimeout, lockTimeout: lockTimeout}
}

// GetPaymentRequest retrieves a payment request by its ID
func (r *Repository) GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error) {
	return getPaymentRequest(ctx, r.db, id)
}

// Snapshot reads every row for a job from a single repeatable-read view
func (r *Repository) Snapshot(ctx context.Context, serviceRequestID int64) (*Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("failed to begin snapshot: %w", err))
	}
	defer tx.Rollback()

	requests, err := listPaymentRequests(ctx, tx, serviceRequestID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	txs, err := listTransactions(ctx, tx, serviceRequestID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(ctx, fmt.Errorf("failed to finish snapshot: %w", err))
	}

	return &Snapshot{Requests: requests, Transactions: txs}, nil
}

// WithinJob runs fn in a database transaction holding the job's advisory lock
func (r *Repository) WithinJob(ctx context.Context, serviceRequestID int64, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, lockTimeout); err != nil {
		return classify(ctx, fmt.Errorf("failed to set lock timeout: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, serviceRequestID); err != nil {
		return classify(ctx, fmt.Errorf("failed to lock service request %d: %w", serviceRequestID, err))
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(ctx, err)
	}

	if err := tx.Commit(); err != nil {
		return classify(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify marks lock, serialization and timeout failures as retryable
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %w", ErrRetryable, err)
		}
	}
	return err
}

// pgTx implements Tx over a *sql.Tx
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetPaymentRequest(ctx context.Context, id int64) (*PaymentRequest, error) {
	return getPaymentRequest(ctx, t.tx, id)
}

func (t *pgTx) ListPaymentRequests(ctx context.Context, serviceRequestID int64) ([]*PaymentRequest, error) {
	return listPaymentRequests(ctx, t.tx, serviceRequestID)
}

func (t *pgTx) ListTransactions(ctx context.Context, serviceRequestID int64) ([]*Transaction, error) {
	return listTransactions(ctx, t.tx, serviceRequestID)
}

func (t *pgTx) CreatePaymentRequest(ctx context.Context, pr *PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (service_request_id, requested_by, amount, description, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := t.tx.QueryRowContext(ctx, query,
		pr.ServiceRequestID,
		pr.RequestedBy,
		pr.Amount,
		pr.Description,
		pr.Status,
		pr.RequestedAt,
	).Scan(&pr.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (t *pgTx) ResolvePaymentRequest(ctx context.Context, id int64, status RequestStatus, at time.Time, reason *string) error {
	query := `
		UPDATE payment_requests
		SET status = $2, resolved_at = $3, decline_reason = $4
		WHERE id = $1 AND status = $5
	`

	result, err := t.tx.ExecContext(ctx, query, id, status, at, reason, RequestStatusPending)
	if err != nil {
		return fmt.Errorf("failed to resolve payment request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve payment request: %w", err)
	}
	if n == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, txn *Transaction) error {
	query := `
		INSERT INTO payment_transactions (payment_request_id, service_request_id, amount, platform_fee,
		                                  worker_amount, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := t.tx.QueryRowContext(ctx, query,
		txn.PaymentRequestID,
		txn.ServiceRequestID,
		txn.Amount,
		txn.PlatformFee,
		txn.WorkerAmount,
		txn.Status,
		txn.Description,
		txn.CreatedAt,
	).Scan(&txn.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%w: payment request %d", ErrDuplicateTransaction, txn.PaymentRequestID)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (t *pgTx) RecordPayoutEvent(ctx context.Context, e *payout.Event) error {
	return payout.Insert(ctx, t.tx, e)
}

const requestColumns = `id, service_request_id, requested_by, amount, description, status,
	requested_at, resolved_at, decline_reason`

func scanPaymentRequest(row interface{ Scan(...interface{}) error }) (*PaymentRequest, error) {
	pr := &PaymentRequest{}
	err := row.Scan(
		&pr.ID,
		&pr.ServiceRequestID,
		&pr.RequestedBy,
		&pr.Amount,
		&pr.Description,
		&pr.Status,
		&pr.RequestedAt,
		&pr.ResolvedAt,
		&pr.DeclineReason,
	)
	return pr, err
}

func getPaymentRequest(ctx context.Context, q querier, id int64) (*PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE id = $1`

	pr, err := scanPaymentRequest(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return pr, nil
}

func listPaymentRequests(ctx context.Context, q querier, serviceRequestID int64) ([]*PaymentRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM payment_requests
		WHERE service_request_id = $1
		ORDER BY requested_at DESC, id DESC
	`

	rows, err := q.QueryContext(ctx, query, serviceRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	var requests []*PaymentRequest
	for rows.Next() {
		pr, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		requests = append(requests, pr)
	}
	return requests, rows.Err()
}

func listTransactions(ctx context.Context, q querier, serviceRequestID int64) ([]*Transaction, error) {
	query := `
		SELECT id, payment_request_id, service_request_id, amount, platform_fee, worker_amount,
		       status, description, created_at
		FROM payment_transactions
		WHERE service_request_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := q.QueryContext(ctx, query, serviceRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(
			&t.ID,
			&t.PaymentRequestID,
			&t.ServiceRequestID,
			&t.Amount,
			&t.PlatformFee,
			&t.WorkerAmount,
			&t.Status,
			&t.Description,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
