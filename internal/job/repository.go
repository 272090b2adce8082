package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Repository reads service requests from the job-management tables
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new job repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetJob retrieves a service request by its ID.
// WorkerID is zero while no worker is assigned.
func (r *Repository) GetJob(ctx context.Context, id int64) (*Job, error) {
	query := `
		SELECT id, budget, currency, status, worker_id, client_id
		FROM service_requests
		WHERE id = $1
	`

	var workerID sql.NullInt64
	job := &Job{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.Budget,
		&job.Currency,
		&job.Status,
		&workerID,
		&job.ClientID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get service request: %w", err)
	}
	job.WorkerID = workerID.Int64

	return job, nil
}

// MemoryRepository is an in-process job directory used by the memory store
// backend and by tests
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[int64]Job
}

// NewMemoryRepository creates an empty job directory
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[int64]Job)}
}

// Put inserts or replaces a job
func (r *MemoryRepository) Put(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
}

// SetStatus changes the status of an existing job
func (r *MemoryRepository) SetStatus(id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = status
	r.jobs[id] = j
	return nil
}

// GetJob returns a copy of the job with the given ID
func (r *MemoryRepository) GetJob(ctx context.Context, id int64) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &j, nil
}

// LoadJSON adds the jobs from a JSON array to the directory
func (r *MemoryRepository) LoadJSON(rd io.Reader) (int, error) {
	var jobs []Job
	if err := json.NewDecoder(rd).Decode(&jobs); err != nil {
		return 0, fmt.Errorf("failed to decode jobs: %w", err)
	}
	for _, j := range jobs {
		if j.ID <= 0 || j.Budget < 0 {
			return 0, fmt.Errorf("invalid job %+v", j)
		}
		r.Put(j)
	}
	return len(jobs), nil
}
