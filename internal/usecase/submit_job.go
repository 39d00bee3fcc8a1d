package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/metrics"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/publisher"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
)

// compensateTimeout bounds writes that must outlive the request context.
const compensateTimeout = 5 * time.Second

// SubmitJobUsecase handles the business logic for submitting asynchronous jobs.
type SubmitJobUsecase struct {
	repo      repository.JobRepository
	publisher publisher.Publisher
	registry  *tasks.Registry
	logger    *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(repo repository.JobRepository, pub publisher.Publisher, registry *tasks.Registry, logger *zap.Logger) *SubmitJobUsecase {
	return &SubmitJobUsecase{
		repo:      repo,
		publisher: pub,
		registry:  registry,
		logger:    logger,
	}
}

// Execute validates the submission, creates a pending job, enqueues it and
// returns without waiting for the work. Validation failures create no row.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	if req.OwnerID == "" {
		return nil, domain.ErrMissingOwner
	}

	handler, ok := uc.registry.Get(req.TaskType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, req.TaskType)
	}
	if err := handler.Validate(req.Payload); err != nil {
		return nil, err
	}

	// Generate UUIDv7 (time-ordered)
	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	job := &domain.Job{
		ID:       jobID,
		OwnerID:  req.OwnerID,
		TaskType: req.TaskType,
		Status:   domain.StatusPending,
	}

	// The row must exist before any worker can see the message.
	if err := uc.repo.Create(ctx, job); err != nil {
		uc.logger.Error("Failed to create job in database", zap.Error(err), zap.String("job_id", jobID.String()))
		return nil, fmt.Errorf("create job: %w", err)
	}

	msg := &domain.TaskMessage{
		JobID:      jobID,
		TaskType:   req.TaskType,
		OwnerID:    req.OwnerID,
		Payload:    req.Payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := uc.publisher.Publish(ctx, msg); err != nil {
		uc.logger.Error("Failed to publish job to queue", zap.Error(err), zap.String("job_id", jobID.String()))
		uc.compensate(ctx, job, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrEnqueueFailed, err)
	}

	metrics.JobsSubmitted.WithLabelValues(req.TaskType).Inc()
	uc.logger.Info("Job submitted successfully",
		zap.String("job_id", jobID.String()),
		zap.String("task_type", req.TaskType),
		zap.String("owner_id", req.OwnerID),
	)

	return &domain.SubmitResponse{
		JobID:  jobID,
		Status: domain.StatusPending,
	}, nil
}

// compensate settles a job that never reached the queue. If this write fails
// too, the reconciliation sweep expires the job later.
func (uc *SubmitJobUsecase) compensate(ctx context.Context, job *domain.Job, cause error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	update := domain.Failed("failed to enqueue job: " + cause.Error())
	if err := uc.repo.UpdateTerminal(wctx, job.ID, update); err != nil {
		uc.logger.Error("Failed to mark unqueued job as failed",
			zap.Error(err),
			zap.String("job_id", job.ID.String()),
		)
		return
	}
	metrics.JobsFinished.WithLabelValues(job.TaskType, string(domain.StatusFailed)).Inc()
}
