// Package domain holds the durable customer identity aggregate, keyed
// by the normalized carrier identifier rather than a surrogate id.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the conversion funnel position. It only ever moves forward:
// visitor < identified < customer.
type Status string

const (
	StatusVisitor    Status = "visitor"
	StatusIdentified Status = "identified"
	StatusCustomer   Status = "customer"
)

// Customer accumulates everything known about one identifier within a
// tenant. Counters are maintained with atomic SQL increments; the
// bounded lists are rings trimmed on append.
type Customer struct {
	TenantID int64  `gorm:"primaryKey;autoIncrement:false" json:"tenant_id"`
	MSISDN   string `gorm:"primaryKey;type:text" json:"msisdn"`

	Status       Status     `gorm:"type:text;not null;default:visitor" json:"status"`
	IdentifiedAt *time.Time `json:"identified_at,omitempty"`
	ConvertedAt  *time.Time `json:"converted_at,omitempty"`

	FirstPurchaseAt *time.Time `json:"first_purchase_at,omitempty"`
	LastPurchaseAt  *time.Time `json:"last_purchase_at,omitempty"`

	AccountUserID *int64 `json:"account_user_id,omitempty"`
	AccountEmail  string `gorm:"type:text" json:"account_email,omitempty"`
	AccountName   string `gorm:"type:text" json:"account_name,omitempty"`

	FirstLandingPage string                       `gorm:"type:text" json:"first_landing_page,omitempty"`
	LastLandingPage  string                       `gorm:"type:text" json:"last_landing_page,omitempty"`
	LandingPages     datatypes.JSONSlice[string]  `json:"landing_pages,omitempty"`
	RecentSessions   datatypes.JSONSlice[string]  `json:"recent_sessions,omitempty"`
	RecentVisits     datatypes.JSONSlice[int64]   `json:"recent_visits,omitempty"`

	Carrier string `gorm:"type:text" json:"carrier,omitempty"`
	Country string `gorm:"type:text" json:"country,omitempty"`

	TopCampaign string `gorm:"type:text" json:"top_campaign,omitempty"`
	TopSource   string `gorm:"type:text" json:"top_source,omitempty"`

	TotalVisits int64 `gorm:"not null;default:0" json:"total_visits"`
	HeavyUser   bool  `gorm:"not null;default:false" json:"heavy_user"`

	TotalPurchases     int64 `gorm:"not null;default:0" json:"total_purchases"`
	RepurchaseCount    int64 `gorm:"not null;default:0" json:"repurchase_count"`
	TotalBillingAmount int64 `gorm:"not null;default:0" json:"total_billing_amount"`
	AvgPurchaseValue   int64 `gorm:"not null;default:0" json:"avg_purchase_value"`

	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null;index" json:"last_seen_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// VisitsLast30Days counts ring entries inside the trailing window.
// RecentVisits stores unix timestamps, newest last.
func (c *Customer) VisitsLast30Days(now time.Time) int {
	cutoff := now.Add(-30 * 24 * time.Hour).Unix()
	n := 0
	for _, ts := range c.RecentVisits {
		if ts >= cutoff {
			n++
		}
	}
	return n
}
