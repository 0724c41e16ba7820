package services

import (
	"testing"

	"github.com/MackHatch/etl-studio/db/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
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

// seedDataset creates a dataset with one schema version holding the given
// mapping and rules documents.
func seedDataset(t *testing.T, db *gorm.DB, mappingJSON, rulesJSON string) *models.ImportDataset {
	t.Helper()
	dataset := &models.ImportDataset{
		ID:                  uuid.New(),
		Name:                "ad-spend",
		ActiveSchemaVersion: 1,
		OrgID:               uuid.New(),
	}
	require.NoError(t, db.Create(dataset).Error)

	version := &models.DatasetSchemaVersion{
		ID:          uuid.New(),
		DatasetID:   dataset.ID,
		Version:     1,
		MappingJSON: datatypes.JSON(mappingJSON),
		RulesJSON:   datatypes.JSON(rulesJSON),
	}
	require.NoError(t, db.Create(version).Error)
	return dataset
}

func seedQueuedRun(t *testing.T, db *gorm.DB, datasetID uuid.UUID, filePath string) *models.ImportRun {
	t.Helper()
	run := &models.ImportRun{
		ID:          uuid.New(),
		DatasetID:   datasetID,
		Status:      models.RunStatusQueued,
		FileStorage: models.FileStorageDisk,
	}
	if filePath != "" {
		run.FilePath = &filePath
	}
	require.NoError(t, db.Create(run).Error)
	return run
}
