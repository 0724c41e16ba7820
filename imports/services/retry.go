package services

import (
	"context"
	"fmt"

	"github.com/MackHatch/etl-studio/db/models"
	"github.com/MackHatch/etl-studio/imports/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Enqueuer schedules a run for processing. Implemented by the task client;
// kept as an interface here so the service layer does not depend on the
// queue wiring.
type Enqueuer interface {
	EnqueueImportRun(ctx context.Context, runID uuid.UUID) error
}

// RetryService is the manual recovery path for FAILED and dead-lettered runs.
// It resets run state and schedules a fresh delivery with a full retry budget.
type RetryService struct {
	repo     repositories.ImportRunRepository
	enqueuer Enqueuer
	logger   *zap.Logger
}

func NewRetryService(repo repositories.ImportRunRepository, enqueuer Enqueuer, logger *zap.Logger) *RetryService {
	return &RetryService{repo: repo, enqueuer: enqueuer, logger: logger}
}

// RetryRun requeues the run and enqueues a new task for it. Attempt history
// is preserved; only status and the dlq flag are reset.
func (s *RetryService) RetryRun(ctx context.Context, runID uuid.UUID) (*models.ImportRun, error) {
	run, err := s.repo.RequeueFailedRun(runID)
	if err != nil {
		return nil, err
	}
	if err := s.enqueuer.EnqueueImportRun(ctx, runID); err != nil {
		// The run stays QUEUED; a later retry call will enqueue it again.
		return nil, fmt.Errorf("run %s requeued but enqueue failed: %w", runID, err)
	}
	s.logger.Info("ImportRun requeued for retry",
		zap.String("run_id", runID.String()),
		zap.Int("prior_attempts", run.AttemptCount))
	return run, nil
}
