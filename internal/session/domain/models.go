// Package domain holds the visitor session model tracked across the
// anonymous browsing funnel.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Confidence grades how certain the identifier attached to a session is.
// Header enrichment yields unconfirmed, a completed purchase confirms.
type Confidence string

const (
	ConfidenceNone        Confidence = "none"
	ConfidenceUnconfirmed Confidence = "unconfirmed"
	ConfidenceConfirmed   Confidence = "confirmed"
)

// Rank orders confidence levels so upgrades can be compared in SQL.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceConfirmed:
		return 2
	case ConfidenceUnconfirmed:
		return 1
	default:
		return 0
	}
}

// VisitorSession is one browser/device session. The session id is
// client-supplied and unique within a tenant.
type VisitorSession struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  int64        `gorm:"not null;uniqueIndex:idx_visitor_sessions_tenant_session" json:"tenant_id"`
	SessionID string       `gorm:"type:text;not null;uniqueIndex:idx_visitor_sessions_tenant_session" json:"session_id"`

	LandingPage string `gorm:"type:text" json:"landing_page,omitempty"`
	Referrer    string `gorm:"type:text" json:"referrer,omitempty"`
	IP          string `gorm:"type:text;index" json:"ip,omitempty"`
	UserAgent   string `gorm:"type:text" json:"user_agent,omitempty"`

	UTMSource   string `gorm:"type:text" json:"utm_source,omitempty"`
	UTMMedium   string `gorm:"type:text" json:"utm_medium,omitempty"`
	UTMCampaign string `gorm:"type:text" json:"utm_campaign,omitempty"`
	NetworkType string `gorm:"type:text" json:"network_type,omitempty"`

	RawMSISDN  string     `gorm:"type:text" json:"raw_msisdn,omitempty"`
	MSISDN     string     `gorm:"type:text;index" json:"msisdn,omitempty"`
	Confidence Confidence `gorm:"type:text;not null;default:none" json:"confidence"`
	Carrier    string     `gorm:"type:text" json:"carrier,omitempty"`
	Country    string     `gorm:"type:text" json:"country,omitempty"`

	PageViews         int64 `gorm:"not null;default:0" json:"page_views"`
	EnteredPortal     bool  `gorm:"not null;default:false" json:"entered_portal"`
	PurchaseCompleted bool  `gorm:"not null;default:false" json:"purchase_completed"`

	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null;index" json:"last_seen_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (VisitorSession) TableName() string { return "visitor_sessions" }
