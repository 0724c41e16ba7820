package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ImportRecord is one successfully validated row. For a given run the
// row_number is unique, and a row produces either a record or errors, never both.
type ImportRecord struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key;" json:"id"`
	RunID       uuid.UUID       `gorm:"type:uuid;not null;index:ix_import_records_run_id_row_number" json:"run_id"`
	RowNumber   int             `gorm:"not null;index:ix_import_records_run_id_row_number" json:"row_number"`
	Date        time.Time       `gorm:"type:date;not null" json:"date"`
	Campaign    string          `gorm:"size:512;not null;index:ix_import_records_run_id_campaign" json:"campaign"`
	Channel     string          `gorm:"size:255;not null" json:"channel"`
	Spend       decimal.Decimal `gorm:"type:decimal(18,2)" json:"spend"`
	Clicks      int             `gorm:"not null" json:"clicks"`
	Conversions int             `gorm:"not null" json:"conversions"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
