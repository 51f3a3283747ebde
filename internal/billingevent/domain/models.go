// Package domain contains the system of record for carrier billing events.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Source identifies where a billing event entered the system.
type Source string

const (
	SourceDimoco       Source = "dimoco"
	SourceImport       Source = "import"
	SourceSMS          Source = "sms"
	SourceSubscription Source = "subscription"
	SourceOther        Source = "other"
)

// Status is the settlement state of a billing event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusBilled     Status = "billed"
	StatusCompleted  Status = "completed"
	StatusRefunded   Status = "refunded"
	StatusChargeback Status = "chargeback"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Reversed reports whether the status revokes an entitlement.
func (s Status) Reversed() bool {
	return s == StatusRefunded || s == StatusChargeback
}

// BillingEvent is the immutable record of one monetary transaction.
// Amount, identifier and timestamp never change after creation; only
// Status transitions later.
type BillingEvent struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID  string       `gorm:"type:text;not null;uniqueIndex" json:"event_id"`
	TenantID int64        `gorm:"not null;index" json:"tenant_id"`

	RawMSISDN string `gorm:"type:text" json:"raw_msisdn,omitempty"`
	MSISDN    string `gorm:"type:text;not null;index" json:"msisdn"`

	Source   Source `gorm:"type:text;not null" json:"source"`
	Status   Status `gorm:"type:text;not null" json:"status"`
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:text;not null;default:EUR" json:"currency"`

	ProductCode   string  `gorm:"type:text" json:"product_code,omitempty"`
	ContentItemID string  `gorm:"type:text;index" json:"content_item_id,omitempty"`
	TransactionID *string `gorm:"type:text;uniqueIndex" json:"transaction_id,omitempty"`

	SessionID     *string       `gorm:"type:text" json:"session_id,omitempty"`
	ImportBatchID *snowflake.ID `gorm:"index" json:"import_batch_id,omitempty"`

	EventAt    time.Time         `gorm:"not null;index" json:"event_at"`
	RawPayload datatypes.JSONMap `gorm:"type:jsonb" json:"raw_payload,omitempty"`

	// SettledAt marks that the post-completion pipeline ran for this
	// event; replay skips settled events.
	SettledAt *time.Time `gorm:"index" json:"settled_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// EventID derives the deterministic identity of a billing event from the
// fields that define it. Recording the same logical event twice yields
// the same id and therefore hits the unique constraint.
func EventID(msisdn string, eventAt time.Time, amount int64, source Source, productCode string) string {
	payload := strings.Join([]string{
		msisdn,
		strconv.FormatInt(eventAt.UTC().Unix(), 10),
		strconv.FormatInt(amount, 10),
		string(source),
		productCode,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
