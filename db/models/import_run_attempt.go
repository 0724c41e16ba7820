package models

import (
	"time"

	"github.com/google/uuid"
)

type ImportRunAttemptStatus string

const (
	AttemptStatusStarted   ImportRunAttemptStatus = "STARTED"
	AttemptStatusSucceeded ImportRunAttemptStatus = "SUCCEEDED"
	AttemptStatusFailed    ImportRunAttemptStatus = "FAILED"
)

// ImportRunAttempt is an append-only audit record of one processing attempt.
// Terminal attempts are never mutated; a retry always appends a new one.
type ImportRunAttempt struct {
	ID            uuid.UUID              `gorm:"type:uuid;primary_key;" json:"id"`
	RunID         uuid.UUID              `gorm:"type:uuid;not null;index:ix_import_run_attempts_run_number" json:"run_id"`
	AttemptNumber int                    `gorm:"not null;index:ix_import_run_attempts_run_number" json:"attempt_number"`
	Status        ImportRunAttemptStatus `gorm:"size:16;not null" json:"status"`
	StartedAt     time.Time              `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at"`
	ErrorMessage  *string                `gorm:"type:text" json:"error_message"`
	Traceback     *string                `gorm:"type:text" json:"traceback"`
	CreatedAt     time.Time              `gorm:"autoCreateTime" json:"created_at"`
}
