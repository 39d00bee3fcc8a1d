package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

// JobRepository defines the interface for job persistence operations.
// Implementations must be safe for concurrent use.
type JobRepository interface {
	// Create inserts a new pending job into the data store.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its UUID. Returns domain.ErrJobNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// UpdateTerminal atomically moves a pending job to a terminal state.
	// Returns domain.ErrJobAlreadyTerminal if the job already left pending
	// and domain.ErrJobNotFound if it does not exist.
	UpdateTerminal(ctx context.Context, id uuid.UUID, update domain.TerminalUpdate) error

	// ListStalePending returns up to limit jobs still pending that were
	// created before olderThan, oldest first.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Job, error)

	// Ping checks connectivity to the data store.
	Ping(ctx context.Context) error
}

// IdempotencyStore defines the interface for distributed deduplication locks.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a job.
	// Returns true if the lock was acquired, false if another worker holds it.
	AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error)

	// RefreshLock extends the TTL of a lock this worker holds. Returns false
	// if the lock has already lapsed.
	RefreshLock(ctx context.Context, jobID uuid.UUID) (bool, error)

	// IsLocked reports whether some worker currently holds the job's lock.
	IsLocked(ctx context.Context, jobID uuid.UUID) (bool, error)

	// ReleaseLock drops the processing lock so a redelivery can run the job.
	ReleaseLock(ctx context.Context, jobID uuid.UUID) error
}

// RateCounter counts events per key inside a fixed window.
type RateCounter interface {
	// Incr increments key and returns the count within the current window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
