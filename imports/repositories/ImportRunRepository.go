package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/MackHatch/etl-studio/db/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportRunRepository is the persistence surface of the import pipeline.
// Every method is its own transaction scope; no call holds a transaction open
// across the whole file.
type ImportRunRepository interface {
	GetRun(runID uuid.UUID) (*models.ImportRun, error)
	GetDataset(datasetID uuid.UUID) (*models.ImportDataset, error)
	GetSchemaVersion(datasetID uuid.UUID, version int) (*models.DatasetSchemaVersion, error)
	GetRowErrors(runID uuid.UUID) ([]models.ImportRowError, error)

	BeginAttempt(run *models.ImportRun) (*models.ImportRunAttempt, error)
	PinSchemaVersion(runID uuid.UUID, version int) error
	ClearRunOutput(runID uuid.UUID) error
	InitCounters(runID uuid.UUID, totalRows int) error
	MarkRowLimitExceeded(runID uuid.UUID, totalRows int) error

	BulkInsertErrors(rowErrors []models.ImportRowError) error
	BulkInsertRecords(records []models.ImportRecord) error
	CommitProgress(runID uuid.UUID, processed, success, errorRows, progressPercent int) error

	FinalizeSuccess(run *models.ImportRun, attempt *models.ImportRunAttempt, processed, success, errorRows int) error
	MarkAttemptFailed(run *models.ImportRun, attempt *models.ImportRunAttempt, errorMessage, traceback string, setDLQ bool) error
	RequeueRun(runID uuid.UUID) error
	RequeueFailedRun(runID uuid.UUID) (*models.ImportRun, error)
}

type importRunRepository struct {
	db *gorm.DB
}

func NewImportRunRepository(db *gorm.DB) ImportRunRepository {
	return &importRunRepository{
		db: db,
	}
}

func (r *importRunRepository) GetRun(runID uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.First(&run, "id = ?", runID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *importRunRepository) GetDataset(datasetID uuid.UUID) (*models.ImportDataset, error) {
	var dataset models.ImportDataset
	err := r.db.First(&dataset, "id = ?", datasetID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dataset, nil
}

func (r *importRunRepository) GetSchemaVersion(datasetID uuid.UUID, version int) (*models.DatasetSchemaVersion, error) {
	var schemaVersion models.DatasetSchemaVersion
	err := r.db.First(&schemaVersion, "dataset_id = ? AND version = ?", datasetID, version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &schemaVersion, nil
}

func (r *importRunRepository) GetRowErrors(runID uuid.UUID) ([]models.ImportRowError, error) {
	var rowErrors []models.ImportRowError
	err := r.db.Where("run_id = ?", runID).
		Order("row_number ASC").
		Find(&rowErrors).Error
	if err != nil {
		return nil, err
	}
	return rowErrors, nil
}

// PinSchemaVersion records which schema version the run was processed with,
// for runs that were queued without an explicit version.
func (r *importRunRepository) PinSchemaVersion(runID uuid.UUID, version int) error {
	return r.db.Model(&models.ImportRun{}).Where("id = ?", runID).
		Update("schema_version", version).Error
}

// BeginAttempt moves the run to RUNNING and appends the STARTED attempt
// record in one transaction. The attempt number is the incremented
// attempt_count, so numbers stay monotonic across retries.
func (r *importRunRepository) BeginAttempt(run *models.ImportRun) (*models.ImportRunAttempt, error) {
	now := time.Now().UTC()
	run.AttemptCount++
	run.Status = models.RunStatusRunning
	run.StartedAt = &now

	attempt := &models.ImportRunAttempt{
		ID:            uuid.New(),
		RunID:         run.ID,
		AttemptNumber: run.AttemptCount,
		Status:        models.AttemptStatusStarted,
		StartedAt:     now,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ImportRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
			"attempt_count": run.AttemptCount,
			"status":        run.Status,
			"started_at":    run.StartedAt,
		}).Error; err != nil {
			return err
		}
		return tx.Create(attempt).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin attempt for run %s: %w", run.ID, err)
	}
	return attempt, nil
}

// ClearRunOutput removes all prior records and row errors for the run, so
// reprocessing replaces rather than accumulates.
func (r *importRunRepository) ClearRunOutput(runID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&models.ImportRowError{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", runID).Delete(&models.ImportRecord{}).Error
	})
}

func (r *importRunRepository) InitCounters(runID uuid.UUID, totalRows int) error {
	return r.db.Model(&models.ImportRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"total_rows":         totalRows,
		"processed_rows":     0,
		"success_rows":       0,
		"error_rows":         0,
		"progress_percent":   0,
		"row_limit_exceeded": false,
	}).Error
}

// MarkRowLimitExceeded records why the run was rejected without processing.
// The status transition itself happens through the normal failure path.
func (r *importRunRepository) MarkRowLimitExceeded(runID uuid.UUID, totalRows int) error {
	return r.db.Model(&models.ImportRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"row_limit_exceeded": true,
		"total_rows":         totalRows,
	}).Error
}

func (r *importRunRepository) BulkInsertErrors(rowErrors []models.ImportRowError) error {
	if len(rowErrors) == 0 {
		return nil
	}
	for i := range rowErrors {
		if rowErrors[i].ID == uuid.Nil {
			rowErrors[i].ID = uuid.New()
		}
	}
	return r.db.Create(&rowErrors).Error
}

func (r *importRunRepository) BulkInsertRecords(records []models.ImportRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if records[i].ID == uuid.Nil {
			records[i].ID = uuid.New()
		}
	}
	return r.db.Create(&records).Error
}

func (r *importRunRepository) CommitProgress(runID uuid.UUID, processed, success, errorRows, progressPercent int) error {
	return r.db.Model(&models.ImportRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"processed_rows":   processed,
		"success_rows":     success,
		"error_rows":       errorRows,
		"progress_percent": progressPercent,
	}).Error
}

func (r *importRunRepository) FinalizeSuccess(run *models.ImportRun, attempt *models.ImportRunAttempt, processed, success, errorRows int) error {
	now := time.Now().UTC()
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ImportRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
			"processed_rows":   processed,
			"success_rows":     success,
			"error_rows":       errorRows,
			"status":           models.RunStatusSucceeded,
			"progress_percent": 100,
			"finished_at":      now,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ImportRunAttempt{}).Where("id = ?", attempt.ID).Updates(map[string]interface{}{
			"status":      models.AttemptStatusSucceeded,
			"finished_at": now,
		}).Error
	})
}

// MarkAttemptFailed closes out the current attempt and the run together.
// Error text is clamped before storage so a pathological message cannot blow
// up the attempt row.
func (r *importRunRepository) MarkAttemptFailed(run *models.ImportRun, attempt *models.ImportRunAttempt, errorMessage, traceback string, setDLQ bool) error {
	now := time.Now().UTC()
	msg := clampMessage(errorMessage)

	runUpdates := map[string]interface{}{
		"status":        models.RunStatusFailed,
		"finished_at":   now,
		"error_summary": msg,
		"last_error":    msg,
	}
	if setDLQ {
		runUpdates["dlq"] = true
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if attempt != nil {
			attemptUpdates := map[string]interface{}{
				"status":      models.AttemptStatusFailed,
				"finished_at": now,
				"error_message": func() *string {
					if msg == "" {
						return nil
					}
					return &msg
				}(),
			}
			if traceback != "" {
				truncated := TruncateTraceback(traceback)
				attemptUpdates["traceback"] = &truncated
			}
			if err := tx.Model(&models.ImportRunAttempt{}).Where("id = ?", attempt.ID).Updates(attemptUpdates).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.ImportRun{}).Where("id = ?", run.ID).Updates(runUpdates).Error
	})
}

// RequeueRun flips a run back to QUEUED so the next delivery of the task can
// pick it up. Used on transient failures with retry budget left.
func (r *importRunRepository) RequeueRun(runID uuid.UUID) error {
	return r.db.Model(&models.ImportRun{}).Where("id = ?", runID).
		Update("status", models.RunStatusQueued).Error
}

// RequeueFailedRun is the manual recovery path: a FAILED or dead-lettered run
// goes back to QUEUED with dlq cleared. Any other state is rejected.
func (r *importRunRepository) RequeueFailedRun(runID uuid.UUID) (*models.ImportRun, error) {
	run, err := r.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("import run %s not found", runID)
	}
	if run.Status != models.RunStatusFailed && !run.DLQ {
		return nil, fmt.Errorf("retry only allowed for runs with status FAILED or in DLQ, got %s", run.Status)
	}
	err = r.db.Model(&models.ImportRun{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status": models.RunStatusQueued,
		"dlq":    false,
	}).Error
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatusQueued
	run.DLQ = false
	return run, nil
}

const (
	tracebackMaxLen = 8000
	messageMaxLen   = 2000
)

// TruncateTraceback keeps the head and tail of an oversized stack trace with
// an elision marker between them.
func TruncateTraceback(s string) string {
	if len(s) <= tracebackMaxLen {
		return s
	}
	return s[:tracebackMaxLen-50] + "\n... (truncated)\n" + s[len(s)-50:]
}

func clampMessage(s string) string {
	if len(s) > messageMaxLen {
		return s[:messageMaxLen]
	}
	return s
}
