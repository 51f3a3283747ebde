package domain

import (
	"context"
	"time"

	"github.com/newsmint/kiosk/pkg/db/pagination"
	"gorm.io/gorm"
)

// SearchFilter narrows billing event listings.
type SearchFilter struct {
	TenantID      int64
	MSISDN        string
	Source        Source
	Status        Status
	ImportBatchID int64
	From          *time.Time
	To            *time.Time
}

// Stats is the reconciliation rollup for a tenant and time range.
type Stats struct {
	TotalEvents int64            `json:"total_events"`
	TotalAmount int64            `json:"total_amount"`
	BySource    map[string]int64 `json:"by_source"`
	ByStatus    map[string]int64 `json:"by_status"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *BillingEvent) error
	FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*BillingEvent, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*BillingEvent, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, eventID string, status Status, now time.Time) error
	Search(ctx context.Context, db *gorm.DB, filter SearchFilter, page pagination.Pagination) ([]*BillingEvent, int64, error)
	Stats(ctx context.Context, db *gorm.DB, tenantID int64, from, to *time.Time) (*Stats, error)

	// ListUnsettled returns completed events whose settlement marker
	// is still empty, oldest first.
	ListUnsettled(ctx context.Context, db *gorm.DB, tenantID int64, since time.Time, limit int) ([]*BillingEvent, error)

	// MarkSettled claims the settlement marker; zero rows means another
	// worker already did.
	MarkSettled(ctx context.Context, db *gorm.DB, eventID string, now time.Time) (int64, error)
}
