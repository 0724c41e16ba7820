package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportRowError is one mapping or validation failure for a row. Field is nil
// for row-level failures. RawRow is nil when the original row was too large
// to store.
type ImportRowError struct {
	ID        uuid.UUID         `gorm:"type:uuid;primary_key;" json:"id"`
	RunID     uuid.UUID         `gorm:"type:uuid;not null;index:ix_import_row_errors_run_id_row_number" json:"run_id"`
	RowNumber int               `gorm:"not null;index:ix_import_row_errors_run_id_row_number" json:"row_number"`
	Field     *string           `gorm:"size:255" json:"field"`
	Message   string            `gorm:"size:1024;not null" json:"message"`
	RawRow    datatypes.JSONMap `json:"raw_row"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
}
