package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportRunStatus is the run lifecycle: DRAFT -> QUEUED -> RUNNING -> SUCCEEDED | FAILED.
type ImportRunStatus string

const (
	RunStatusDraft     ImportRunStatus = "DRAFT"
	RunStatusQueued    ImportRunStatus = "QUEUED"
	RunStatusRunning   ImportRunStatus = "RUNNING"
	RunStatusSucceeded ImportRunStatus = "SUCCEEDED"
	RunStatusFailed    ImportRunStatus = "FAILED"
)

// FileStorageKind selects where the run's CSV lives.
type FileStorageKind string

const (
	FileStorageDisk FileStorageKind = "disk"
	FileStorageS3   FileStorageKind = "s3"
)

// ImportRun is one file-processing lineage for a dataset. The worker owns it
// exclusively while processing; the upload API creates it in DRAFT/QUEUED.
type ImportRun struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;" json:"id"`
	DatasetID uuid.UUID       `gorm:"type:uuid;not null;index:ix_import_runs_dataset_id_created_at" json:"dataset_id"`
	Status    ImportRunStatus `gorm:"size:16;not null;default:'DRAFT';index:ix_import_runs_status_created_at" json:"status"`

	// Nil until processing starts, then pinned to the dataset's active version.
	SchemaVersion *int `json:"schema_version"`

	// File reference
	FileStorage   FileStorageKind `gorm:"size:16;not null;default:'disk'" json:"file_storage"`
	FilePath      *string         `gorm:"size:1024" json:"file_path"`
	S3Bucket      *string         `gorm:"size:255" json:"s3_bucket"`
	S3Key         *string         `gorm:"size:1024" json:"s3_key"`
	FileSHA256    *string         `gorm:"size:64;index" json:"file_sha256"`
	FileSizeBytes *int64          `json:"file_size_bytes"`

	// Progress counters, committed periodically while processing
	RowLimitExceeded bool `gorm:"not null;default:false" json:"row_limit_exceeded"`
	ProgressPercent  int  `gorm:"not null;default:0" json:"progress_percent"`
	TotalRows        *int `json:"total_rows"`
	ProcessedRows    int  `gorm:"not null;default:0" json:"processed_rows"`
	SuccessRows      int  `gorm:"not null;default:0" json:"success_rows"`
	ErrorRows        int  `gorm:"not null;default:0" json:"error_rows"`

	// Retry / DLQ bookkeeping
	AttemptCount int     `gorm:"not null;default:0" json:"attempt_count"`
	DLQ          bool    `gorm:"not null;default:false" json:"dlq"`
	ErrorSummary *string `gorm:"type:text" json:"error_summary"`
	LastError    *string `gorm:"type:text" json:"last_error"`

	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index:ix_import_runs_dataset_id_created_at;index:ix_import_runs_status_created_at" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Dataset  *ImportDataset     `gorm:"foreignKey:DatasetID" json:"dataset,omitempty"`
	Attempts []ImportRunAttempt `gorm:"foreignKey:RunID" json:"attempts,omitempty"`
	Errors   []ImportRowError   `gorm:"foreignKey:RunID" json:"errors,omitempty"`
	Records  []ImportRecord     `gorm:"foreignKey:RunID" json:"records,omitempty"`
}
