package services

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"unicode/utf8"

	"github.com/MackHatch/etl-studio/config"
	"github.com/MackHatch/etl-studio/db/models"
	"github.com/MackHatch/etl-studio/imports/pipeline"
	"github.com/MackHatch/etl-studio/imports/repositories"
	"github.com/MackHatch/etl-studio/imports/schema"
	"github.com/MackHatch/etl-studio/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetryState tells the processor where the current delivery sits in its retry
// budget. Exhausted means this is the last attempt, so a transient failure
// dead-letters the run instead of requeueing it.
type RetryState struct {
	Exhausted bool
}

// RunProcessor executes one import run end to end: resolve the schema, parse
// the file, transform and validate every row, and persist records, errors and
// final status. Process is idempotent with respect to run output; reprocessing
// replaces everything the previous attempt wrote.
type RunProcessor struct {
	repo        repositories.ImportRunRepository
	localFiles  utils.FileStorage
	objectStore utils.ObjectStorage
	publisher   *ProgressPublisher
	limits      config.ImportLimits
	persistCfg  PersisterConfig
	logger      *zap.Logger
}

func NewRunProcessor(
	repo repositories.ImportRunRepository,
	localFiles utils.FileStorage,
	objectStore utils.ObjectStorage,
	publisher *ProgressPublisher,
	limits config.ImportLimits,
	persistCfg PersisterConfig,
	logger *zap.Logger,
) *RunProcessor {
	return &RunProcessor{
		repo:        repo,
		localFiles:  localFiles,
		objectStore: objectStore,
		publisher:   publisher,
		limits:      limits,
		persistCfg:  persistCfg,
		logger:      logger,
	}
}

// Process runs a single attempt for the run. Only QUEUED runs are picked up;
// anything else is a stale or duplicate delivery and is skipped without side
// effects. The returned Outcome carries the failure classification the task
// layer uses to decide on retries.
func (p *RunProcessor) Process(ctx context.Context, runID uuid.UUID, retry RetryState) Outcome {
	run, err := p.repo.GetRun(runID)
	if err != nil {
		return FailedTransient(fmt.Errorf("failed to load run %s: %w", runID, err))
	}
	if run == nil {
		p.logger.Error("ImportRun not found, dropping task", zap.String("run_id", runID.String()))
		return Skipped("run not found")
	}
	if run.Status != models.RunStatusQueued {
		p.logger.Warn("ImportRun is not QUEUED, skipping",
			zap.String("run_id", runID.String()),
			zap.String("status", string(run.Status)))
		return Skipped(fmt.Sprintf("run status is %s", run.Status))
	}

	attempt, err := p.repo.BeginAttempt(run)
	if err != nil {
		// The run is still QUEUED, a retry can pick it up cleanly.
		return FailedTransient(err)
	}

	var procErr error
	traceback := ""
	func() {
		defer func() {
			if r := recover(); r != nil {
				procErr = fmt.Errorf("panic while processing run %s: %v", runID, r)
				traceback = string(debug.Stack())
			}
		}()
		procErr = p.processAttempt(ctx, run, attempt)
	}()

	if procErr == nil {
		return Success()
	}

	if IsDeterministic(procErr) {
		p.logger.Warn("ImportRun failed deterministically",
			zap.String("run_id", runID.String()),
			zap.Int("attempt", attempt.AttemptNumber),
			zap.Error(procErr))
		if err := p.repo.MarkAttemptFailed(run, attempt, procErr.Error(), traceback, false); err != nil {
			p.logger.Error("failed to record deterministic failure",
				zap.String("run_id", runID.String()), zap.Error(err))
		}
		return FailedDeterministic(procErr)
	}

	p.logger.Error("ImportRun failed",
		zap.String("run_id", runID.String()),
		zap.Int("attempt", attempt.AttemptNumber),
		zap.Bool("retry_exhausted", retry.Exhausted),
		zap.Error(procErr))
	if err := p.repo.MarkAttemptFailed(run, attempt, procErr.Error(), traceback, retry.Exhausted); err != nil {
		p.logger.Error("failed to record transient failure",
			zap.String("run_id", runID.String()), zap.Error(err))
	}
	if !retry.Exhausted {
		if err := p.repo.RequeueRun(run.ID); err != nil {
			p.logger.Error("failed to requeue run for retry",
				zap.String("run_id", runID.String()), zap.Error(err))
		}
	}
	return FailedTransient(procErr)
}

func (p *RunProcessor) processAttempt(ctx context.Context, run *models.ImportRun, attempt *models.ImportRunAttempt) error {
	dataset, err := p.repo.GetDataset(run.DatasetID)
	if err != nil {
		return fmt.Errorf("failed to load dataset %s: %w", run.DatasetID, err)
	}
	if dataset == nil {
		return Deterministic("Dataset not found")
	}

	version := dataset.ActiveSchemaVersion
	if run.SchemaVersion != nil {
		version = *run.SchemaVersion
	}
	schemaVersion, err := p.repo.GetSchemaVersion(run.DatasetID, version)
	if err != nil {
		return fmt.Errorf("failed to load schema version %d: %w", version, err)
	}
	if schemaVersion == nil {
		return Deterministic("Schema version %d not found", version)
	}
	if run.SchemaVersion == nil {
		if err := p.repo.PinSchemaVersion(run.ID, version); err != nil {
			return fmt.Errorf("failed to pin schema version: %w", err)
		}
	}

	mapping, err := schema.ParseMapping(schemaVersion.MappingJSON)
	if err != nil {
		return Deterministic("Invalid mapping document: %v", err)
	}
	rules, err := schema.ParseRules(schemaVersion.RulesJSON)
	if err != nil {
		return Deterministic("Invalid rules document: %v", err)
	}

	csvPath, cleanup, err := p.resolveCSV(ctx, run)
	if err != nil {
		return err
	}
	defer cleanup()

	if run.FileStorage == models.FileStorageS3 && run.FileSHA256 != nil && *run.FileSHA256 != "" {
		sum, hashErr := utils.GenerateFileSHA256(csvPath)
		if hashErr != nil {
			return fmt.Errorf("failed to checksum downloaded file: %w", hashErr)
		}
		if !strings.EqualFold(sum, *run.FileSHA256) {
			// A mismatch usually means a truncated or corrupted download,
			// so a fresh attempt gets to re-fetch the object.
			return fmt.Errorf("File checksum mismatch after download: got %s, want %s", sum, *run.FileSHA256)
		}
	}

	if err := p.repo.ClearRunOutput(run.ID); err != nil {
		return fmt.Errorf("failed to clear previous run output: %w", err)
	}

	headers, rowCount, err := pipeline.CountRows(csvPath)
	if err != nil {
		return classifyReadError(csvPath, err)
	}
	if rowCount > p.limits.MaxRows {
		if err := p.repo.MarkRowLimitExceeded(run.ID, rowCount); err != nil {
			return fmt.Errorf("failed to flag row limit: %w", err)
		}
		return Deterministic("File exceeds maximum row limit: %d rows (max %d)", rowCount, p.limits.MaxRows)
	}

	if err := p.repo.InitCounters(run.ID, rowCount); err != nil {
		return fmt.Errorf("failed to initialize counters: %w", err)
	}

	persister := NewBatchPersister(p.repo, p.publisher, p.persistCfg, run.ID, rowCount)
	lookup := pipeline.NewHeaderLookup(headers)

	err = pipeline.StreamRows(csvPath, headers, func(rowNumber int, row pipeline.RawRow) error {
		return p.processRow(ctx, persister, lookup, mapping, rules, rowNumber, row)
	})
	if err != nil {
		// The count pass already parsed the whole file, so a mid-stream
		// error means the file changed underneath us.
		return fmt.Errorf("failed reading rows: %w", err)
	}

	if err := persister.Flush(); err != nil {
		return fmt.Errorf("failed to flush row buffers: %w", err)
	}

	processed, success, errorRows := persister.Counters()
	if err := p.repo.FinalizeSuccess(run, attempt, processed, success, errorRows); err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	p.publisher.Publish(ctx, run.ID, ProgressSnapshot{
		TotalRows:       rowCount,
		ProcessedRows:   processed,
		SuccessRows:     success,
		ErrorRows:       errorRows,
		ProgressPercent: 100,
	})

	p.logger.Info("ImportRun completed",
		zap.String("run_id", run.ID.String()),
		zap.Int("attempt", attempt.AttemptNumber),
		zap.Int("total_rows", rowCount),
		zap.Int("success_rows", success),
		zap.Int("error_rows", errorRows))
	return nil
}

// processRow routes one row through the pipeline stages. Oversized fields
// reject the row before mapping, mapping errors suppress rule evaluation
// because the coerced values are incomplete, and only fully valid rows become
// records.
func (p *RunProcessor) processRow(ctx context.Context, persister *BatchPersister, lookup *pipeline.HeaderLookup, mapping schema.Mapping, rules schema.RuleSet, rowNumber int, row pipeline.RawRow) error {
	var oversize []pipeline.FieldError
	for header, value := range row {
		if value == "" {
			continue
		}
		// Length limits count characters, not bytes.
		if n := utf8.RuneCountInString(value); n > p.limits.MaxFieldChars {
			oversize = append(oversize, pipeline.FieldError{
				Field:   header,
				Message: fmt.Sprintf("Field value exceeds maximum length: %d chars (max %d)", n, p.limits.MaxFieldChars),
			})
		}
	}
	if len(oversize) > 0 {
		return persister.AddErrorRow(ctx, rowNumber, oversize, row, false)
	}

	canonical, mapErrs := pipeline.Transform(row, mapping, lookup)
	if len(mapErrs) > 0 {
		return persister.AddErrorRow(ctx, rowNumber, mapErrs, row, true)
	}

	if valErrs := pipeline.Validate(canonical, rules); len(valErrs) > 0 {
		return persister.AddErrorRow(ctx, rowNumber, valErrs, row, true)
	}

	return persister.AddRecord(ctx, canonicalToRecord(canonical, rowNumber))
}

// resolveCSV turns the run's storage pointer into a local readable path. For
// object storage the file lands in a temp file the returned cleanup removes.
func (p *RunProcessor) resolveCSV(ctx context.Context, run *models.ImportRun) (string, func(), error) {
	noop := func() {}

	if run.FileStorage == models.FileStorageS3 {
		if run.S3Bucket == nil || *run.S3Bucket == "" || run.S3Key == nil || *run.S3Key == "" {
			return "", noop, Deterministic("No S3 bucket/key set for run")
		}
		if p.objectStore == nil {
			return "", noop, Deterministic("Object storage is not configured; cannot read S3-stored run")
		}
		tmpPath, err := p.objectStore.DownloadToTemp(ctx, *run.S3Bucket, *run.S3Key)
		if err != nil {
			return "", noop, fmt.Errorf("failed to download s3://%s/%s: %w", *run.S3Bucket, *run.S3Key, err)
		}
		cleanup := func() {
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				p.logger.Warn("failed to remove temp download", zap.String("path", tmpPath), zap.Error(err))
			}
		}
		return tmpPath, cleanup, nil
	}

	if run.FilePath == nil || *run.FilePath == "" {
		return "", noop, Deterministic("No file_path set for run")
	}
	return p.localFiles.ResolvePath(*run.FilePath), noop, nil
}

// classifyReadError treats a missing file as transient; an upload may still
// be landing on shared storage. Anything else from the parser means the bytes
// themselves are bad and retrying cannot help.
func classifyReadError(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("File not found: %s", path)
	}
	return Deterministic("File is not readable as CSV: %v", err)
}

func canonicalToRecord(c pipeline.Canonical, rowNumber int) models.ImportRecord {
	record := models.ImportRecord{RowNumber: rowNumber}
	if c.Date != nil {
		record.Date = *c.Date
	}
	if c.Campaign != nil {
		record.Campaign = *c.Campaign
	}
	if c.Channel != nil {
		record.Channel = *c.Channel
	}
	if c.Spend != nil {
		record.Spend = c.Spend.Round(2)
	}
	if c.Clicks != nil {
		record.Clicks = *c.Clicks
	}
	if c.Conversions != nil {
		record.Conversions = *c.Conversions
	}
	return record
}
