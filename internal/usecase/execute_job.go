package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/metrics"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/storage"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
)

// Notifier delivers terminal-state events to job owners. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// RetryPolicy configures the in-worker retry loop.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// LockWait bounds how long a delivery waits for another worker's lock
	// on a pending job before it is handed back to the queue. It should
	// exceed the lock TTL so an orphaned lock lapses within one delivery.
	LockWait time.Duration
	// LockPoll is the interval between lock attempts while waiting.
	LockPoll time.Duration
	// LockRefresh is the heartbeat interval extending the held lock. Zero
	// disables the heartbeat.
	LockRefresh time.Duration
}

const defaultLockPoll = time.Second

var (
	errLockHeld   = errors.New("lock held by another worker")
	errJobSettled = errors.New("job settled while waiting for its lock")
)

// ExecuteJobUsecase orchestrates the execution of one queued job: load,
// lock, run with retries, store the artifact, and write the terminal state once.
type ExecuteJobUsecase struct {
	repo       repository.JobRepository
	idempotent repository.IdempotencyStore
	store      storage.ObjectStore
	registry   *tasks.Registry
	notifier   Notifier
	policy     RetryPolicy
	logger     *zap.Logger
}

// NewExecuteJobUsecase creates a new ExecuteJobUsecase. notifier may be nil.
func NewExecuteJobUsecase(
	repo repository.JobRepository,
	idempotent repository.IdempotencyStore,
	store storage.ObjectStore,
	registry *tasks.Registry,
	notifier Notifier,
	policy RetryPolicy,
	logger *zap.Logger,
) *ExecuteJobUsecase {
	return &ExecuteJobUsecase{
		repo:       repo,
		idempotent: idempotent,
		store:      store,
		registry:   registry,
		notifier:   notifier,
		policy:     policy,
		logger:     logger,
	}
}

// Execute processes a single delivery. A nil error means the delivery can be
// acknowledged whatever the outcome; a non-nil error means it should be
// redelivered (shutdown, infrastructure failure, or a lock still held by
// another worker) and no terminal state was written.
func (uc *ExecuteJobUsecase) Execute(ctx context.Context, task *domain.TaskMessage) (domain.Outcome, error) {
	log := uc.logger.With(
		zap.String("job_id", task.JobID.String()),
		zap.String("task_type", task.TaskType),
	)

	job, err := uc.repo.GetByID(ctx, task.JobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		log.Warn("Message references unknown job, dropping")
		return domain.OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("load job: %w", err)
	}
	if job.Status.IsTerminal() {
		log.Info("Job already terminal, skipping redelivery", zap.String("status", string(job.Status)))
		return domain.OutcomeSkipped, nil
	}

	acquired, err := uc.acquire(ctx, job, log)
	if err != nil {
		return "", err
	}
	if !acquired {
		log.Info("Job settled by another worker, skipping redelivery")
		return domain.OutcomeSkipped, nil
	}
	defer uc.releaseLock(ctx, job, log)
	stopHeartbeat := uc.keepLock(ctx, job, log)
	defer stopHeartbeat()

	start := time.Now()
	update, err := uc.run(ctx, job, task, log)
	if err != nil {
		log.Warn("Execution interrupted, leaving job pending for redelivery", zap.Error(err))
		return "", err
	}
	metrics.ExecutionDuration.WithLabelValues(job.TaskType).Observe(time.Since(start).Seconds())

	return uc.settle(ctx, job, update, log)
}

// acquire takes the job lock. While another worker holds it, acquire keeps
// trying for up to LockWait, re-reading the job between tries: the holder
// may finish (the job turns terminal) or may have crashed (its lock lapses).
// It returns false when the job was settled meanwhile and ErrJobInFlight
// when the lock is still held at the end of the wait.
func (uc *ExecuteJobUsecase) acquire(ctx context.Context, job *domain.Job, log *zap.Logger) (bool, error) {
	poll := uc.policy.LockPoll
	if poll <= 0 {
		poll = defaultLockPoll
	}
	waited := false
	operation := func() error {
		ok, err := uc.idempotent.AcquireLock(ctx, job.ID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire lock: %w", err))
		}
		if ok && !waited {
			return nil
		}
		if !ok && !waited {
			waited = true
			log.Info("Job locked by another worker, waiting", zap.Duration("max_wait", uc.policy.LockWait))
			return errLockHeld
		}

		// The previous holder may have settled the job before letting go.
		settled, err := uc.settled(ctx, job.ID)
		if err != nil {
			if ok {
				uc.releaseLock(ctx, job, log)
			}
			return backoff.Permanent(err)
		}
		if settled {
			if ok {
				uc.releaseLock(ctx, job, log)
			}
			return backoff.Permanent(errJobSettled)
		}
		if !ok {
			return errLockHeld
		}
		log.Info("Took over lock after waiting")
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(poll), uint64(uc.policy.LockWait/poll)),
		ctx,
	)
	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errJobSettled):
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, errLockHeld):
		log.Warn("Job lock still held, handing delivery back to the queue")
		return false, domain.ErrJobInFlight
	default:
		log.Error("Failed to acquire idempotency lock", zap.Error(err))
		return false, err
	}
}

func (uc *ExecuteJobUsecase) settled(ctx context.Context, id uuid.UUID) (bool, error) {
	current, err := uc.repo.GetByID(ctx, id)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("reload job: %w", err)
	}
	return current.Status.IsTerminal(), nil
}

// keepLock extends the lock every LockRefresh until the returned stop func
// is called, so the lock outlives a slow job but not a crashed worker.
func (uc *ExecuteJobUsecase) keepLock(ctx context.Context, job *domain.Job, log *zap.Logger) func() {
	if uc.policy.LockRefresh <= 0 {
		return func() {}
	}
	hctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(uc.policy.LockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
			}
			held, err := uc.idempotent.RefreshLock(hctx, job.ID)
			switch {
			case err != nil && hctx.Err() == nil:
				log.Warn("Failed to refresh idempotency lock", zap.Error(err))
			case err == nil && !held:
				log.Warn("Idempotency lock lapsed during execution")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// run executes the task under the retry policy and returns the terminal
// update to write. It only returns an error when ctx is cancelled.
func (uc *ExecuteJobUsecase) run(ctx context.Context, job *domain.Job, task *domain.TaskMessage, log *zap.Logger) (domain.TerminalUpdate, error) {
	handler, ok := uc.registry.Get(job.TaskType)
	if !ok {
		return domain.Failed(fmt.Sprintf("no handler registered for task type %q", job.TaskType)), nil
	}

	var (
		key      string
		attempts int
	)
	operation := func() error {
		attempts++
		metrics.JobAttempts.WithLabelValues(job.TaskType).Inc()

		ref, err := uc.attempt(ctx, job, handler, task)
		if err != nil {
			if domain.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		key = ref
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(uc.policy.Delay), uint64(uc.policy.MaxRetries)),
		ctx,
	)
	err := backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		log.Warn("Attempt failed, retrying",
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	})
	if err == nil {
		log.Info("Job executed successfully", zap.Int("attempts", attempts), zap.String("result_reference", key))
		return domain.Completed(key), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.TerminalUpdate{}, ctxErr
	}

	msg := err.Error()
	if msg == "" {
		msg = "task failed"
	}
	log.Error("Job failed",
		zap.Int("attempts", attempts),
		zap.Bool("permanent", domain.IsPermanent(err)),
		zap.Error(err),
	)
	return domain.Failed(msg), nil
}

// attempt is one unit of work: run the task, write the artifact under the
// job's deterministic key and read its size back from the store.
func (uc *ExecuteJobUsecase) attempt(ctx context.Context, job *domain.Job, handler tasks.Handler, task *domain.TaskMessage) (string, error) {
	artifact, err := handler.Run(ctx, task.Payload)
	if err != nil {
		return "", err
	}

	key := storage.ResultKey(job.ID.String(), artifact.Name)
	metadata := map[string]string{
		"type":   job.TaskType + "_result",
		"job_id": job.ID.String(),
	}
	if _, err := uc.store.Put(ctx, key, artifact.Data, metadata); err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}
	size, err := uc.store.Stat(ctx, key)
	if err != nil {
		return "", fmt.Errorf("verify result: %w", err)
	}
	if size != int64(len(artifact.Data)) {
		return "", fmt.Errorf("verify result: stored %d bytes, wrote %d", size, len(artifact.Data))
	}
	return key, nil
}

// settle performs the single terminal write and notifies the owner. The
// outcome is already decided, so the write is detached from shutdown.
func (uc *ExecuteJobUsecase) settle(ctx context.Context, job *domain.Job, update domain.TerminalUpdate, log *zap.Logger) (domain.Outcome, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	err := uc.repo.UpdateTerminal(wctx, job.ID, update)
	switch {
	case errors.Is(err, domain.ErrJobAlreadyTerminal), errors.Is(err, domain.ErrJobNotFound):
		log.Info("Terminal state already written elsewhere, discarding outcome", zap.Error(err))
		return domain.OutcomeSkipped, nil
	case err != nil:
		log.Error("Failed to write terminal state", zap.Error(err))
		return "", fmt.Errorf("write terminal state: %w", err)
	}

	metrics.JobsFinished.WithLabelValues(job.TaskType, string(update.Status)).Inc()
	notifyOwner(wctx, uc.notifier, domain.NewTerminalEvent(job, update, time.Now().UTC()), log)

	if update.Status == domain.StatusCompleted {
		return domain.OutcomeCompleted, nil
	}
	return domain.OutcomeFailed, nil
}

func (uc *ExecuteJobUsecase) releaseLock(ctx context.Context, job *domain.Job, log *zap.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	if err := uc.idempotent.ReleaseLock(rctx, job.ID); err != nil {
		log.Warn("Failed to release idempotency lock", zap.Error(err))
	}
}

func notifyOwner(ctx context.Context, n Notifier, event domain.Event, log *zap.Logger) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event); err != nil {
		metrics.Notifications.WithLabelValues("error").Inc()
		log.Warn("Failed to publish notification", zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}
