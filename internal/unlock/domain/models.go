// Package domain holds the entitlement ledger: one row per paid unlock
// of a content item by an identifier.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status mirrors the settlement state of the originating billing event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Source records which ingestion path produced the grant.
type Source string

const (
	SourceProcessor Source = "processor"
	SourceImport    Source = "import"
	SourceManual    Source = "manual"
)

// UnlockGrant entitles an identifier to a content item. The transaction
// id is stored as an empty string when the source supplied none so the
// uniqueness constraint still collapses repeat grants for the pair.
type UnlockGrant struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID int64        `gorm:"not null;uniqueIndex:idx_unlock_grants_key" json:"tenant_id"`
	MSISDN   string       `gorm:"type:text;not null;uniqueIndex:idx_unlock_grants_key" json:"msisdn"`

	ContentItemID string `gorm:"type:text;not null;uniqueIndex:idx_unlock_grants_key" json:"content_item_id"`
	TransactionID string `gorm:"type:text;not null;default:'';uniqueIndex:idx_unlock_grants_key" json:"transaction_id,omitempty"`

	EventID  string `gorm:"type:text;index" json:"event_id,omitempty"`
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:text;not null;default:EUR" json:"currency"`

	Status Status `gorm:"type:text;not null" json:"status"`
	Source Source `gorm:"type:text;not null" json:"source"`

	GrantedAt time.Time         `gorm:"not null" json:"granted_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UnlockGrant) TableName() string { return "unlock_grants" }
