package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/storage"
)

// GetJobUsecase handles fetching job status and results.
type GetJobUsecase struct {
	repo   repository.JobRepository
	store  storage.ObjectStore
	urlTTL time.Duration
	logger *zap.Logger
}

// NewGetJobUsecase creates a new GetJobUsecase. Result links are presigned
// at read time and stay valid for urlTTL.
func NewGetJobUsecase(repo repository.JobRepository, store storage.ObjectStore, urlTTL time.Duration, logger *zap.Logger) *GetJobUsecase {
	return &GetJobUsecase{
		repo:   repo,
		store:  store,
		urlTTL: urlTTL,
		logger: logger,
	}
}

// Execute returns the caller's view of a job. A job owned by someone else is
// reported exactly like a job that does not exist.
func (uc *GetJobUsecase) Execute(ctx context.Context, id uuid.UUID, ownerID string) (*domain.JobView, error) {
	job, err := uc.repo.GetByID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err != nil || job.OwnerID != ownerID {
		uc.logger.Debug("Job not found", zap.String("job_id", id.String()))
		return nil, domain.ErrJobNotFound
	}

	view := domain.NewJobView(job)
	if job.Status == domain.StatusCompleted && job.ResultReference != nil {
		url, err := uc.store.URLFor(ctx, *job.ResultReference, uc.urlTTL)
		if err != nil {
			// The reference stays in the view; only the link is missing.
			uc.logger.Warn("Failed to presign result url",
				zap.String("job_id", id.String()),
				zap.Error(err),
			)
		} else {
			view.ResultURL = url
		}
	}
	return view, nil
}
