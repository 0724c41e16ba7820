package repositories

import (
	"strings"
	"testing"

	"github.com/MackHatch/etl-studio/db/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.ImportDataset{},
		&models.DatasetSchemaVersion{},
		&models.ImportRun{},
		&models.ImportRunAttempt{},
		&models.ImportRowError{},
		&models.ImportRecord{},
	))
	return db
}

func seedRun(t *testing.T, db *gorm.DB, status models.ImportRunStatus) *models.ImportRun {
	t.Helper()
	dataset := &models.ImportDataset{
		ID:                  uuid.New(),
		Name:                "ads",
		ActiveSchemaVersion: 1,
		OrgID:               uuid.New(),
	}
	require.NoError(t, db.Create(dataset).Error)

	run := &models.ImportRun{
		ID:        uuid.New(),
		DatasetID: dataset.ID,
		Status:    status,
	}
	require.NoError(t, db.Create(run).Error)
	return run
}

func TestGetRunNotFound(t *testing.T) {
	repo := NewImportRunRepository(newTestDB(t))

	run, err := repo.GetRun(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestBeginAttemptIncrementsMonotonically(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)

	first, err := repo.BeginAttempt(run)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, models.AttemptStatusStarted, first.Status)

	stored, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.NotNil(t, stored.StartedAt)

	second, err := repo.BeginAttempt(stored)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)
}

func TestClearRunOutputDeletesBothTables(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)

	require.NoError(t, repo.BulkInsertErrors([]models.ImportRowError{
		{RunID: run.ID, RowNumber: 1, Message: "bad"},
	}))
	require.NoError(t, repo.BulkInsertRecords([]models.ImportRecord{
		{RunID: run.ID, RowNumber: 2, Campaign: "c", Channel: "ch"},
	}))

	require.NoError(t, repo.ClearRunOutput(run.ID))

	var errCount, recCount int64
	require.NoError(t, db.Model(&models.ImportRowError{}).Where("run_id = ?", run.ID).Count(&errCount).Error)
	require.NoError(t, db.Model(&models.ImportRecord{}).Where("run_id = ?", run.ID).Count(&recCount).Error)
	assert.Zero(t, errCount)
	assert.Zero(t, recCount)
}

func TestFinalizeSuccess(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)
	attempt, err := repo.BeginAttempt(run)
	require.NoError(t, err)

	require.NoError(t, repo.FinalizeSuccess(run, attempt, 10, 8, 2))

	stored, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercent)
	assert.Equal(t, 10, stored.ProcessedRows)
	assert.Equal(t, 8, stored.SuccessRows)
	assert.Equal(t, 2, stored.ErrorRows)
	assert.NotNil(t, stored.FinishedAt)

	var storedAttempt models.ImportRunAttempt
	require.NoError(t, db.First(&storedAttempt, "id = ?", attempt.ID).Error)
	assert.Equal(t, models.AttemptStatusSucceeded, storedAttempt.Status)
	assert.NotNil(t, storedAttempt.FinishedAt)
}

func TestMarkAttemptFailedClampsAndTruncates(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)
	attempt, err := repo.BeginAttempt(run)
	require.NoError(t, err)

	longMsg := strings.Repeat("x", 3000)
	longTrace := strings.Repeat("t", 9000)
	require.NoError(t, repo.MarkAttemptFailed(run, attempt, longMsg, longTrace, true))

	stored, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.True(t, stored.DLQ)
	require.NotNil(t, stored.ErrorSummary)
	assert.Len(t, *stored.ErrorSummary, 2000)

	var storedAttempt models.ImportRunAttempt
	require.NoError(t, db.First(&storedAttempt, "id = ?", attempt.ID).Error)
	assert.Equal(t, models.AttemptStatusFailed, storedAttempt.Status)
	require.NotNil(t, storedAttempt.Traceback)
	assert.Contains(t, *storedAttempt.Traceback, "... (truncated)")
}

func TestMarkAttemptFailedWithoutDLQ(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)
	attempt, err := repo.BeginAttempt(run)
	require.NoError(t, err)

	require.NoError(t, repo.MarkAttemptFailed(run, attempt, "boom", "", false))

	stored, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.False(t, stored.DLQ)
}

func TestRequeueFailedRunGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)

	run := seedRun(t, db, models.RunStatusSucceeded)
	_, err := repo.RequeueFailedRun(run.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry only allowed")

	failed := seedRun(t, db, models.RunStatusFailed)
	require.NoError(t, db.Model(failed).Update("dlq", true).Error)

	requeued, err := repo.RequeueFailedRun(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, requeued.Status)
	assert.False(t, requeued.DLQ)
}

func TestPinSchemaVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)

	require.NoError(t, repo.PinSchemaVersion(run.ID, 3))

	stored, err := repo.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SchemaVersion)
	assert.Equal(t, 3, *stored.SchemaVersion)
}

func TestGetRowErrorsOrderedByRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewImportRunRepository(db)
	run := seedRun(t, db, models.RunStatusQueued)

	require.NoError(t, repo.BulkInsertErrors([]models.ImportRowError{
		{RunID: run.ID, RowNumber: 5, Message: "late"},
		{RunID: run.ID, RowNumber: 1, Message: "early"},
	}))

	rowErrors, err := repo.GetRowErrors(run.ID)
	require.NoError(t, err)
	require.Len(t, rowErrors, 2)
	assert.Equal(t, 1, rowErrors[0].RowNumber)
	assert.Equal(t, 5, rowErrors[1].RowNumber)
}

func TestTruncateTraceback(t *testing.T) {
	short := "short trace"
	assert.Equal(t, short, TruncateTraceback(short))

	long := strings.Repeat("a", 10000)
	truncated := TruncateTraceback(long)
	assert.Less(t, len(truncated), len(long))
	assert.Contains(t, truncated, "\n... (truncated)\n")
	assert.True(t, strings.HasSuffix(truncated, strings.Repeat("a", 50)))
}
