package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MackHatch/etl-studio/db/models"
	"github.com/MackHatch/etl-studio/imports/repositories"
	"github.com/MackHatch/etl-studio/imports/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeProcessImportRun = "import:process_run"
	TypeRetryImportRun   = "import:retry_run"

	// QueueImports keeps import work off the default queue so other task
	// types cannot starve it.
	QueueImports = "imports"
)

type ProcessImportRunPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

func NewProcessImportRunTask(runID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessImportRunPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TypeProcessImportRun, payload), nil
}

// Client enqueues import run tasks. It satisfies services.Enqueuer.
type Client struct {
	client     *asynq.Client
	maxRetries int
	logger     *zap.Logger
}

func NewClient(client *asynq.Client, maxRetries int, logger *zap.Logger) *Client {
	return &Client{client: client, maxRetries: maxRetries, logger: logger}
}

func (c *Client) EnqueueImportRun(ctx context.Context, runID uuid.UUID) error {
	task, err := NewProcessImportRunTask(runID)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueImports),
		asynq.MaxRetry(c.maxRetries),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", runID, err)
	}
	c.logger.Info("Enqueued import run task",
		zap.String("run_id", runID.String()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue))
	return nil
}

// RetryDelay backs off exponentially: 1s, 2s, 4s, ...
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return time.Duration(1<<uint(n)) * time.Second
}

// RunProcessor is the piece of the processing service the handler drives.
// *services.RunProcessor implements it.
type RunProcessor interface {
	Process(ctx context.Context, runID uuid.UUID, retry services.RetryState) services.Outcome
}

// DeadLetterNotifier is implemented by *services.DeadLetterNotifier.
type DeadLetterNotifier interface {
	NotifyDeadLettered(run *models.ImportRun, lastError string)
}

// Indirection over the asynq context getters so handler tests can supply
// retry positions.
var (
	getRetryCount = asynq.GetRetryCount
	getMaxRetry   = asynq.GetMaxRetry
)

// ImportRunHandler adapts the processor to asynq. Retry bookkeeping lives
// here: the processor only learns whether the current delivery is the last
// one, and the returned error tells asynq whether to redeliver.
type ImportRunHandler struct {
	processor RunProcessor
	notifier  DeadLetterNotifier
	repo      repositories.ImportRunRepository
	logger    *zap.Logger
}

func NewImportRunHandler(
	processor RunProcessor,
	notifier DeadLetterNotifier,
	repo repositories.ImportRunRepository,
	logger *zap.Logger,
) *ImportRunHandler {
	return &ImportRunHandler{
		processor: processor,
		notifier:  notifier,
		repo:      repo,
		logger:    logger,
	}
}

func (h *ImportRunHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ProcessImportRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}

	retryCount, _ := getRetryCount(ctx)
	maxRetry, _ := getMaxRetry(ctx)
	exhausted := retryCount >= maxRetry

	outcome := h.processor.Process(ctx, payload.RunID, services.RetryState{Exhausted: exhausted})
	switch outcome.Kind {
	case services.OutcomeSuccess:
		return nil

	case services.OutcomeSkipped:
		h.logger.Info("Import run task skipped",
			zap.String("run_id", payload.RunID.String()),
			zap.String("reason", outcome.Reason))
		return nil

	case services.OutcomeDeterministicFailure:
		// Retrying cannot change the result, fail the task for good.
		return fmt.Errorf("run %s failed permanently: %v: %w", payload.RunID, outcome.Err, asynq.SkipRetry)

	default:
		if exhausted {
			h.notifyDeadLettered(payload.RunID, outcome.Err)
		}
		// asynq redelivers while budget remains and archives after that.
		return fmt.Errorf("run %s failed: %w", payload.RunID, outcome.Err)
	}
}

func (h *ImportRunHandler) notifyDeadLettered(runID uuid.UUID, cause error) {
	run, err := h.repo.GetRun(runID)
	if err != nil || run == nil {
		h.logger.Error("failed to load dead-lettered run for notification",
			zap.String("run_id", runID.String()), zap.Error(err))
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	h.notifier.NotifyDeadLettered(run, msg)
}

// NewRetryImportRunTask asks the worker to requeue a FAILED or dead-lettered
// run. Dashboards drop this task instead of talking to the database directly.
func NewRetryImportRunTask(runID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessImportRunPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TypeRetryImportRun, payload), nil
}

type RetryImportRunHandler struct {
	retry  *services.RetryService
	logger *zap.Logger
}

func NewRetryImportRunHandler(retry *services.RetryService, logger *zap.Logger) *RetryImportRunHandler {
	return &RetryImportRunHandler{retry: retry, logger: logger}
}

func (h *RetryImportRunHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ProcessImportRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}
	run, err := h.retry.RetryRun(ctx, payload.RunID)
	if err != nil {
		// A run in the wrong state will still be in the wrong state on
		// redelivery.
		return fmt.Errorf("retry of run %s rejected: %v: %w", payload.RunID, err, asynq.SkipRetry)
	}
	h.logger.Info("Import run retry accepted",
		zap.String("run_id", run.ID.String()),
		zap.Int("prior_attempts", run.AttemptCount))
	return nil
}

// NewMux registers all task handlers.
func NewMux(handler *ImportRunHandler, retryHandler *RetryImportRunHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeProcessImportRun, handler)
	mux.Handle(TypeRetryImportRun, retryHandler)
	return mux
}
