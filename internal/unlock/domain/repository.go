package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert stores the grant unless one already exists for the same
	// (tenant, msisdn, content item, transaction) key. Reports whether
	// a row was written. Conflicts do not poison an enclosing
	// transaction, so settlement can run this inside one.
	Insert(ctx context.Context, db *gorm.DB, grant *UnlockGrant) (bool, error)

	FindByKey(ctx context.Context, db *gorm.DB, tenantID int64, msisdn, contentItemID, transactionID string) (*UnlockGrant, error)

	// HasCompletedGrant answers the paywall read path from the unique
	// index: a completed, unexpired grant for the pair.
	HasCompletedGrant(ctx context.Context, db *gorm.DB, tenantID int64, msisdn, contentItemID string, now time.Time) (bool, error)

	// UpdateStatusByTransactionID mirrors a billing event reversal onto
	// the grants it produced. Returns the affected grants.
	UpdateStatusByTransactionID(ctx context.Context, db *gorm.DB, tenantID int64, transactionID string, status Status, now time.Time) ([]*UnlockGrant, error)

	FindByMSISDN(ctx context.Context, db *gorm.DB, tenantID int64, msisdn string, limit int) ([]*UnlockGrant, error)
}
