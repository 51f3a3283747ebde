// Package domain holds the CSV import batch state machine and its
// row-level error records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the batch lifecycle. Processing is the only non-terminal
// state; transitions out of it are one-way.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the batch can no longer change.
func (s Status) Terminal() bool { return s != StatusProcessing }

// Outcome classifies one processed row.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
)

// Canonical field names a column mapping may bind.
const (
	FieldMSISDN        = "msisdn"
	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldStatus        = "status"
	FieldDate          = "date"
	FieldEventID       = "event_id"
	FieldProductCode   = "product_code"
	FieldContentItem   = "content_item_id"
)

// ImportBatch tracks one uploaded file. Counters are incremented per
// row; the record is never mutated after reaching a terminal status.
type ImportBatch struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	Ref      string       `gorm:"type:text;not null;uniqueIndex" json:"ref"`
	TenantID int64        `gorm:"not null;index" json:"tenant_id"`

	FileName   string `gorm:"type:text" json:"file_name,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	Uploader   string `gorm:"type:text" json:"uploader,omitempty"`
	SourceType string `gorm:"type:text" json:"source_type,omitempty"`

	Status Status `gorm:"type:text;not null;default:processing" json:"status"`

	TotalRows  int64 `gorm:"not null;default:0" json:"total_rows"`
	Accepted   int64 `gorm:"not null;default:0" json:"accepted"`
	Rejected   int64 `gorm:"not null;default:0" json:"rejected"`
	Duplicates int64 `gorm:"not null;default:0" json:"duplicates"`

	ColumnMapping datatypes.JSONMap `gorm:"type:jsonb" json:"column_mapping,omitempty"`

	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ImportBatch) TableName() string { return "import_batches" }

// ImportError is one rejected or unprocessable row, kept for audit.
type ImportError struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	BatchID snowflake.ID `gorm:"not null;index" json:"batch_id"`

	RowNumber int               `gorm:"not null" json:"row_number"`
	Field     string            `gorm:"type:text" json:"field,omitempty"`
	Message   string            `gorm:"type:text;not null" json:"message"`
	RawRow    datatypes.JSONMap `gorm:"type:jsonb" json:"raw_row,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ImportError) TableName() string { return "import_errors" }
