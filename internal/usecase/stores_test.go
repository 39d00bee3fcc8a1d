package usecase_test

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/storage"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

// flakyStore accepts writes but fails the first failStats read-backs.
type flakyStore struct {
	*storage.MemoryStorage
	mu        sync.Mutex
	failStats int
}

func (s *flakyStore) Stat(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	if s.failStats > 0 {
		s.failStats--
		s.mu.Unlock()
		return 0, errors.New("storage: connection reset")
	}
	s.mu.Unlock()
	return s.MemoryStorage.Stat(ctx, key)
}

// truncatingStore reports a size that never matches what was written.
type truncatingStore struct {
	*storage.MemoryStorage
}

func (s *truncatingStore) Stat(ctx context.Context, key string) (int64, error) {
	n, err := s.MemoryStorage.Stat(ctx, key)
	return n - 1, err
}

func newExecute(h *harness, store storage.ObjectStore) *usecase.ExecuteJobUsecase {
	return usecase.NewExecuteJobUsecase(h.repo, h.idem, store, h.registry, h.notifier, testPolicy, zap.NewNop())
}

func newExecuteWithPolicy(h *harness, store storage.ObjectStore, policy usecase.RetryPolicy) *usecase.ExecuteJobUsecase {
	return usecase.NewExecuteJobUsecase(h.repo, h.idem, store, h.registry, h.notifier, policy, zap.NewNop())
}
