package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/metrics"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

// ExpiredMessage is the error message of jobs failed by the sweep.
const ExpiredMessage = "job expired in pending state"

// ReconcileUsecase fails jobs that stayed pending far longer than any
// execution could take, e.g. when the process died between insert and publish.
// Age is measured from submission, so the timeout also bounds time spent
// queued. Jobs a worker currently holds the lock for are left alone.
type ReconcileUsecase struct {
	repo     repository.JobRepository
	locks    repository.IdempotencyStore
	notifier Notifier
	timeout  time.Duration
	interval time.Duration
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconcileUsecase creates a sweep failing jobs pending for longer than
// timeout. locks may be nil.
func NewReconcileUsecase(repo repository.JobRepository, locks repository.IdempotencyStore, notifier Notifier, timeout, interval time.Duration, batch int, logger *zap.Logger) *ReconcileUsecase {
	return &ReconcileUsecase{
		repo:     repo,
		locks:    locks,
		notifier: notifier,
		timeout:  timeout,
		interval: interval,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (uc *ReconcileUsecase) Run(ctx context.Context) error {
	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()

	for {
		if n, err := uc.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			uc.logger.Error("Reconciliation sweep failed", zap.Error(err))
		} else if n > 0 {
			uc.logger.Info("Expired stale pending jobs", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep fails every job pending since before now-timeout and returns how
// many it settled.
func (uc *ReconcileUsecase) Sweep(ctx context.Context) (int, error) {
	cutoff := uc.now().Add(-uc.timeout)
	settled := 0
	// Running jobs stay in the listing, so the page grows past them.
	running := make(map[uuid.UUID]struct{})

	for {
		limit := uc.batch + len(running)
		jobs, err := uc.repo.ListStalePending(ctx, cutoff, limit)
		if err != nil {
			return settled, fmt.Errorf("list stale jobs: %w", err)
		}

		seen := 0
		for _, job := range jobs {
			if _, ok := running[job.ID]; ok {
				continue
			}
			seen++
			log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("task_type", job.TaskType))
			if uc.isRunning(ctx, job) {
				running[job.ID] = struct{}{}
				log.Info("Stale pending job is running, not expiring", zap.Time("created_at", job.CreatedAt))
				continue
			}

			update := domain.Failed(ExpiredMessage)
			err := uc.repo.UpdateTerminal(ctx, job.ID, update)
			if errors.Is(err, domain.ErrJobAlreadyTerminal) {
				continue
			}
			if err != nil {
				return settled, fmt.Errorf("expire job %s: %w", job.ID, err)
			}

			settled++
			metrics.JobsReconciled.Inc()
			metrics.JobsFinished.WithLabelValues(job.TaskType, string(domain.StatusFailed)).Inc()
			log.Warn("Expired stale pending job", zap.Time("created_at", job.CreatedAt))
			notifyOwner(ctx, uc.notifier, domain.NewTerminalEvent(job, update, uc.now().UTC()), log)
		}

		if len(jobs) < limit || seen == 0 {
			return settled, nil
		}
	}
}

func (uc *ReconcileUsecase) isRunning(ctx context.Context, job *domain.Job) bool {
	if uc.locks == nil {
		return false
	}
	held, err := uc.locks.IsLocked(ctx, job.ID)
	if err != nil {
		uc.logger.Warn("Lock check failed, expiring anyway", zap.String("job_id", job.ID.String()), zap.Error(err))
		return false
	}
	return held
}
