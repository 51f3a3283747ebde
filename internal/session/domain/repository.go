package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// IdentifierUpdate is the payload AttachIdentifier applies to a session.
type IdentifierUpdate struct {
	RawMSISDN  string
	MSISDN     string
	Confidence Confidence
	Carrier    string
	Country    string
}

type Repository interface {
	// Upsert creates the session or, on conflict with an existing
	// (tenant, session id) pair, bumps its counters atomically.
	Upsert(ctx context.Context, db *gorm.DB, session *VisitorSession) error

	FindBySessionID(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string) (*VisitorSession, error)

	// AttachIdentifier applies the update only when the new confidence
	// is at least the stored one. Returns the number of rows changed.
	AttachIdentifier(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, update IdentifierUpdate, now time.Time) (int64, error)

	FindRecentByIP(ctx context.Context, db *gorm.DB, tenantID int64, ip string, since time.Time, limit int) ([]*VisitorSession, error)

	SetEnteredPortal(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, now time.Time) (int64, error)
	SetPurchaseCompleted(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, now time.Time) (int64, error)
}
