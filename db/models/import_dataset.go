package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportDataset groups import runs that share a column mapping. The active
// schema version is what new runs pin when they are queued without an
// explicit version.
type ImportDataset struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	Name                string         `gorm:"size:255;not null;index" json:"name"`
	Description         *string        `gorm:"size:1024" json:"description"`
	ActiveSchemaVersion int            `gorm:"default:1;not null" json:"active_schema_version"`
	OrgID               uuid.UUID      `gorm:"type:uuid;not null;index" json:"org_id"`
	CreatedByUserID     *uuid.UUID     `gorm:"type:uuid" json:"created_by_user_id"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`

	Runs           []ImportRun            `gorm:"foreignKey:DatasetID" json:"runs,omitempty"`
	SchemaVersions []DatasetSchemaVersion `gorm:"foreignKey:DatasetID" json:"schema_versions,omitempty"`
}

// DatasetSchemaVersion is an immutable snapshot of a dataset's mapping and
// validation rules. Runs pin a version at start time, so editing the mapping
// never changes the meaning of an already-processed run.
type DatasetSchemaVersion struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key;" json:"id"`
	DatasetID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:ix_dataset_schema_versions_dataset_version" json:"dataset_id"`
	Version         int            `gorm:"not null;uniqueIndex:ix_dataset_schema_versions_dataset_version" json:"version"`
	MappingJSON     datatypes.JSON `gorm:"not null" json:"mapping_json"`
	RulesJSON       datatypes.JSON `gorm:"not null" json:"rules_json"`
	CreatedByUserID *uuid.UUID     `gorm:"type:uuid" json:"created_by_user_id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
