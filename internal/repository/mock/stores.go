package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is an in-memory lock set. Hooks override the default behavior.
type IdempotencyStore struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool

	AcquireLockFn func(ctx context.Context, jobID uuid.UUID) (bool, error)
	RefreshLockFn func(ctx context.Context, jobID uuid.UUID) (bool, error)
	ReleaseLockFn func(ctx context.Context, jobID uuid.UUID) error

	AcquireCalls []uuid.UUID
	RefreshCalls []uuid.UUID
	ReleaseCalls []uuid.UUID
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, jobID)
	if m.AcquireLockFn != nil {
		m.mu.Unlock()
		return m.AcquireLockFn(ctx, jobID)
	}
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[uuid.UUID]bool)
	}
	if m.held[jobID] {
		return false, nil
	}
	m.held[jobID] = true
	return true, nil
}

func (m *IdempotencyStore) RefreshLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.RefreshCalls = append(m.RefreshCalls, jobID)
	if m.RefreshLockFn != nil {
		m.mu.Unlock()
		return m.RefreshLockFn(ctx, jobID)
	}
	defer m.mu.Unlock()
	return m.held[jobID], nil
}

func (m *IdempotencyStore) IsLocked(_ context.Context, jobID uuid.UUID) (bool, error) {
	return m.Held(jobID), nil
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, jobID)
	if m.ReleaseLockFn != nil {
		m.mu.Unlock()
		return m.ReleaseLockFn(ctx, jobID)
	}
	defer m.mu.Unlock()
	delete(m.held, jobID)
	return nil
}

// Refreshes returns how many times RefreshLock was called.
func (m *IdempotencyStore) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RefreshCalls)
}

// Held reports whether jobID is currently locked.
func (m *IdempotencyStore) Held(jobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[jobID]
}

// ---- RateCounter mock ----

var _ repository.RateCounter = (*RateCounter)(nil)

// RateCounter counts per key and ignores the window.
type RateCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	IncrFn func(ctx context.Context, key string, window time.Duration) (int64, error)
}

func (m *RateCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.IncrFn != nil {
		return m.IncrFn(ctx, key, window)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key], nil
}
