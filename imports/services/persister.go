package services

import (
	"context"

	"github.com/MackHatch/etl-studio/db/models"
	"github.com/MackHatch/etl-studio/imports/pipeline"
	"github.com/MackHatch/etl-studio/imports/repositories"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PersisterConfig holds the buffering thresholds. They are configuration, not
// constants, so tests can run with tiny batches.
type PersisterConfig struct {
	ErrorBatchSize   int
	RecordBatchSize  int
	ProgressInterval int
}

func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		ErrorBatchSize:   100,
		RecordBatchSize:  500,
		ProgressInterval: 200,
	}
}

// BatchPersister buffers validated records and row errors and flushes them in
// bounded batches. Progress counters are committed every ProgressInterval
// rows rather than per-row to bound write amplification.
type BatchPersister struct {
	repo      repositories.ImportRunRepository
	publisher *ProgressPublisher
	cfg       PersisterConfig

	runID     uuid.UUID
	totalRows int

	pendingErrors  []models.ImportRowError
	pendingRecords []models.ImportRecord

	processed int
	success   int
	errorRows int
}

func NewBatchPersister(repo repositories.ImportRunRepository, publisher *ProgressPublisher, cfg PersisterConfig, runID uuid.UUID, totalRows int) *BatchPersister {
	return &BatchPersister{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		runID:     runID,
		totalRows: totalRows,
	}
}

// AddErrorRow buffers one error entry per field error for the row and counts
// the row as processed-with-errors. storeRaw is false for oversized rows so
// the error payload stays bounded.
func (p *BatchPersister) AddErrorRow(ctx context.Context, rowNumber int, fieldErrors []pipeline.FieldError, rawRow pipeline.RawRow, storeRaw bool) error {
	var raw datatypes.JSONMap
	if storeRaw {
		raw = make(datatypes.JSONMap, len(rawRow))
		for k, v := range rawRow {
			raw[k] = v
		}
	}
	for _, fe := range fieldErrors {
		field := fe.Field
		entry := models.ImportRowError{
			ID:        uuid.New(),
			RunID:     p.runID,
			RowNumber: rowNumber,
			Message:   fe.Message,
			RawRow:    raw,
		}
		if field != "" {
			entry.Field = &field
		}
		p.pendingErrors = append(p.pendingErrors, entry)
	}
	p.errorRows++
	p.processed++
	if err := p.maybeFlush(); err != nil {
		return err
	}
	return p.maybeCommitProgress(ctx)
}

// AddRecord buffers one validated record and counts the row as successful.
func (p *BatchPersister) AddRecord(ctx context.Context, record models.ImportRecord) error {
	record.ID = uuid.New()
	record.RunID = p.runID
	p.pendingRecords = append(p.pendingRecords, record)
	p.success++
	p.processed++
	if err := p.maybeFlush(); err != nil {
		return err
	}
	return p.maybeCommitProgress(ctx)
}

func (p *BatchPersister) maybeFlush() error {
	if len(p.pendingErrors) >= p.cfg.ErrorBatchSize {
		if err := p.repo.BulkInsertErrors(p.pendingErrors); err != nil {
			return err
		}
		p.pendingErrors = p.pendingErrors[:0]
	}
	if len(p.pendingRecords) >= p.cfg.RecordBatchSize {
		if err := p.repo.BulkInsertRecords(p.pendingRecords); err != nil {
			return err
		}
		p.pendingRecords = p.pendingRecords[:0]
	}
	return nil
}

func (p *BatchPersister) maybeCommitProgress(ctx context.Context) error {
	if p.cfg.ProgressInterval <= 0 || p.processed%p.cfg.ProgressInterval != 0 {
		return nil
	}
	percent := p.ProgressPercent()
	if err := p.repo.CommitProgress(p.runID, p.processed, p.success, p.errorRows, percent); err != nil {
		return err
	}
	p.publisher.Publish(ctx, p.runID, ProgressSnapshot{
		TotalRows:       p.totalRows,
		ProcessedRows:   p.processed,
		SuccessRows:     p.success,
		ErrorRows:       p.errorRows,
		ProgressPercent: percent,
	})
	return nil
}

// Flush writes out whatever is still buffered. Called once at end of stream.
func (p *BatchPersister) Flush() error {
	if len(p.pendingErrors) > 0 {
		if err := p.repo.BulkInsertErrors(p.pendingErrors); err != nil {
			return err
		}
		p.pendingErrors = p.pendingErrors[:0]
	}
	if len(p.pendingRecords) > 0 {
		if err := p.repo.BulkInsertRecords(p.pendingRecords); err != nil {
			return err
		}
		p.pendingRecords = p.pendingRecords[:0]
	}
	return nil
}

func (p *BatchPersister) Counters() (processed, success, errorRows int) {
	return p.processed, p.success, p.errorRows
}

// ProgressPercent is floor(100 * processed / total), capped at 100. An empty
// file reports 100 immediately.
func (p *BatchPersister) ProgressPercent() int {
	if p.totalRows <= 0 {
		return 100
	}
	percent := 100 * p.processed / p.totalRows
	if percent > 100 {
		return 100
	}
	return percent
}
