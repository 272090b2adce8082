package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/fkhayef/milestonepay/internal/database"
	"github.com/fkhayef/milestonepay/internal/fee"
	"github.com/fkhayef/milestonepay/internal/job"
)

func TestClassify(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-expired.Done()

	tests := []struct {
		name          string
		ctx           context.Context
		err           error
		wantRetryable bool
	}{
		{"lock timeout", context.Background(), &pq.Error{Code: pqLockNotAvailable}, true},
		{"serialization failure", context.Background(), fmt.Errorf("commit: %w", &pq.Error{Code: pqSerializationFailure}), true},
		{"deadlock", context.Background(), &pq.Error{Code: pqDeadlockDetected}, true},
		{"deadline", context.Background(), fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"expired transaction context", expired, errors.New("driver: bad connection"), true},
		{"unique violation", context.Background(), &pq.Error{Code: pqUniqueViolation}, false},
		{"domain error", context.Background(), ErrBudgetExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.ctx, tt.err)
			if errors.Is(got, ErrRetryable) != tt.wantRetryable {
				t.Errorf("classify(%v) = %v, retryable want %v", tt.err, got, tt.wantRetryable)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify dropped the cause %v", tt.err)
			}
		})
	}
}

// openTestDB connects to TEST_DATABASE_URL and applies the schema
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.NewPostgresConnection(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPostgresRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// a fresh job id keeps runs against a shared database apart
	jobID := time.Now().UnixNano()
	t.Cleanup(func() {
		db.Exec(`DELETE FROM payout_events WHERE service_request_id = $1`, jobID)
		db.Exec(`DELETE FROM payment_transactions WHERE service_request_id = $1`, jobID)
		db.Exec(`DELETE FROM payment_requests WHERE service_request_id = $1`, jobID)
	})

	jobs := job.NewMemoryRepository()
	jobs.Put(job.Job{
		ID:       jobID,
		Budget:   10000,
		Currency: "INR",
		Status:   job.StatusInProgress,
		WorkerID: testWorkerID,
		ClientID: testClientID,
	})
	repo := NewRepository(db, 5*time.Second, 2*time.Second)
	svc := NewService(repo, jobs, fee.NewDefaultCalculator(), Options{Currency: "INR"})

	// two requests that each fit the budget but not together
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*PaymentRequest
		errs    []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pr, err := svc.CreateRequest(ctx, CreateRequestInput{
				ServiceRequestID: jobID,
				RequestedBy:      testWorkerID,
				Amount:           6000,
				Description:      "milestone",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			created = append(created, pr)
		}()
	}
	wg.Wait()
	if len(created) != 1 || len(errs) != 1 || !errors.Is(errs[0], ErrBudgetExceeded) {
		t.Fatalf("concurrent creates: created=%d errs=%v, want one success and one ErrBudgetExceeded", len(created), errs)
	}
	pr := created[0]

	// the same request resolved twice at once
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ResolveRequest(ctx, ResolveRequestInput{
				RequestID:  pr.ID,
				ResolvedBy: testClientID,
				Decision:   "approve",
			})
		}(i)
	}
	wg.Wait()
	approved, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrAlreadyResolved):
			conflicts++
		default:
			t.Fatalf("ResolveRequest() unexpected error = %v", err)
		}
	}
	if approved != 1 || conflicts != 1 {
		t.Fatalf("approved=%d conflicts=%d, want 1 and 1", approved, conflicts)
	}

	snap, err := repo.Snapshot(ctx, jobID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].PlatformFee != 300 || snap.Transactions[0].WorkerAmount != 5700 {
		t.Errorf("transactions = %+v, want one 300/5700 split", snap.Transactions)
	}
	var events int
	if err := db.QueryRow(`SELECT COUNT(*) FROM payout_events WHERE service_request_id = $1`, jobID).Scan(&events); err != nil {
		t.Fatal(err)
	}
	if events != 1 {
		t.Errorf("payout events = %d, want 1", events)
	}

	// the conditional update and the unique index reject direct rewrites
	err = repo.WithinJob(ctx, jobID, func(ctx context.Context, tx Tx) error {
		return tx.ResolvePaymentRequest(ctx, pr.ID, RequestStatusDeclined, time.Now().UTC(), nil)
	})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("re-resolve error = %v, want ErrAlreadyResolved", err)
	}
	err = repo.WithinJob(ctx, jobID, func(ctx context.Context, tx Tx) error {
		return tx.CreateTransaction(ctx, &Transaction{
			PaymentRequestID: pr.ID,
			ServiceRequestID: jobID,
			Amount:           6000,
			PlatformFee:      300,
			WorkerAmount:     5700,
			Status:           TransactionStatusProcessed,
			Description:      "milestone",
			CreatedAt:        time.Now().UTC(),
		})
	})
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Errorf("second transaction error = %v, want ErrDuplicateTransaction", err)
	}
}
