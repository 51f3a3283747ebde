package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// UpsertInput seeds a new customer row or enriches an existing one.
// Attribution fields are first-write-wins; counters are incremented.
type UpsertInput struct {
	TenantID    int64
	MSISDN      string
	Status      Status
	LandingPage string
	SessionID   string
	Campaign    string
	Source      string
	Carrier     string
	Country     string
}

// PurchaseInput applies one completed purchase to the aggregate.
type PurchaseInput struct {
	TenantID int64
	MSISDN   string
	Amount   int64
}

// LandingPageStats is the funnel rollup for one landing page.
type LandingPageStats struct {
	Slug              string  `json:"slug"`
	Visitors          int64   `json:"visitors"`
	Identified        int64   `json:"identified"`
	Customers         int64   `json:"customers"`
	Revenue           int64   `json:"revenue"`
	TotalPurchases    int64   `json:"total_purchases"`
	ConversionRate    float64 `json:"conversion_rate"`
	RepurchaseRate    float64 `json:"repurchase_rate"`
	AverageOrderValue int64   `json:"average_order_value"`
}

type Repository interface {
	// Upsert inserts the customer or atomically bumps visit counters
	// and applies the monotonic status upgrade on conflict.
	Upsert(ctx context.Context, db *gorm.DB, input UpsertInput, heavyUserThreshold int, now time.Time) error

	// ApplyPurchase inserts or updates the purchase accumulators in a
	// single statement so the average never drifts from the sums.
	ApplyPurchase(ctx context.Context, db *gorm.DB, input PurchaseInput, now time.Time) error

	// MergeActivity unions the landing page into the visited set and
	// appends the session and visit timestamp to the bounded rings.
	MergeActivity(ctx context.Context, db *gorm.DB, tenantID int64, msisdn, landingPage, sessionID string, ringCap int, now time.Time) error

	FindByMSISDN(ctx context.Context, db *gorm.DB, tenantID int64, msisdn string) (*Customer, error)

	LandingPageStats(ctx context.Context, db *gorm.DB, tenantID int64, slug string) (*LandingPageStats, error)
}
