package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

// Ensure MockJobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*MockJobRepository)(nil)

// MockJobRepository is an in-memory job repository for testing. It enforces
// the same pending-only terminal write guard as the Postgres implementation.
type MockJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job

	// Hook functions for injecting errors
	CreateFunc         func(ctx context.Context, job *domain.Job) error
	GetByIDFunc        func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateTerminalFunc func(ctx context.Context, id uuid.UUID, update domain.TerminalUpdate) error
	PingFunc           func(ctx context.Context) error

	// TerminalWrites records every successful terminal write.
	TerminalWrites []TerminalWrite
}

// TerminalWrite is a recorded UpdateTerminal call that changed a row.
type TerminalWrite struct {
	ID     uuid.UUID
	Update domain.TerminalUpdate
}

// NewMockJobRepository creates a new mock repository.
func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		jobs: make(map[uuid.UUID]*domain.Job),
	}
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = domain.StatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *MockJobRepository) UpdateTerminal(ctx context.Context, id uuid.UUID, update domain.TerminalUpdate) error {
	if m.UpdateTerminalFunc != nil {
		return m.UpdateTerminalFunc(ctx, id, update)
	}
	if err := update.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.StatusPending {
		return domain.ErrJobAlreadyTerminal
	}
	now := time.Now().UTC()
	job.Status = update.Status
	job.FinishedAt = &now
	if update.ResultReference != "" {
		ref := update.ResultReference
		job.ResultReference = &ref
	}
	if update.ErrorMessage != "" {
		msg := update.ErrorMessage
		job.ErrorMessage = &msg
	}
	m.TerminalWrites = append(m.TerminalWrites, TerminalWrite{ID: id, Update: update})
	return nil
}

func (m *MockJobRepository) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.StatusPending && j.CreatedAt.Before(olderThan) {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockJobRepository) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Put stores job as-is, bypassing Create, to seed specific states.
func (m *MockJobRepository) Put(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
}

// GetAll returns all stored jobs (for test assertions).
func (m *MockJobRepository) GetAll() []*domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		result = append(result, cloneJob(j))
	}
	return result
}

// WritesFor returns how many terminal writes hit id.
func (m *MockJobRepository) WritesFor(id uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, w := range m.TerminalWrites {
		if w.ID == id {
			n++
		}
	}
	return n
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	if j.ResultReference != nil {
		ref := *j.ResultReference
		c.ResultReference = &ref
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	if j.FinishedAt != nil {
		at := *j.FinishedAt
		c.FinishedAt = &at
	}
	return &c
}
