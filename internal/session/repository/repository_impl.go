package repository

import (
	"context"
	"errors"
	"time"

	"github.com/newsmint/kiosk/internal/session/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, session *domain.VisitorSession) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"page_views":   gorm.Expr("visitor_sessions.page_views + 1"),
			"last_seen_at": session.LastSeenAt,
			"updated_at":   session.LastSeenAt,
		}),
	}).Create(session).Error
}

func (r *repo) FindBySessionID(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string) (*domain.VisitorSession, error) {
	var session domain.VisitorSession
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) AttachIdentifier(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, update domain.IdentifierUpdate, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE visitor_sessions
		 SET raw_msisdn = ?,
		     msisdn = ?,
		     confidence = ?,
		     carrier = COALESCE(NULLIF(?, ''), carrier),
		     country = COALESCE(NULLIF(?, ''), country),
		     last_seen_at = ?,
		     updated_at = ?
		 WHERE tenant_id = ? AND session_id = ?
		   AND (CASE confidence
		          WHEN 'confirmed' THEN 2
		          WHEN 'unconfirmed' THEN 1
		          ELSE 0
		        END) <= ?`,
		update.RawMSISDN,
		update.MSISDN,
		update.Confidence,
		update.Carrier,
		update.Country,
		now,
		now,
		tenantID,
		sessionID,
		update.Confidence.Rank(),
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindRecentByIP(ctx context.Context, db *gorm.DB, tenantID int64, ip string, since time.Time, limit int) ([]*domain.VisitorSession, error) {
	var sessions []*domain.VisitorSession
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND ip = ? AND last_seen_at >= ?", tenantID, ip, since).
		Order("last_seen_at desc").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) SetEnteredPortal(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE visitor_sessions SET entered_portal = ?, last_seen_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND session_id = ?`,
		true, now, now, tenantID, sessionID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SetPurchaseCompleted(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE visitor_sessions SET purchase_completed = ?, last_seen_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND session_id = ?`,
		true, now, now, tenantID, sessionID,
	)
	return res.RowsAffected, res.Error
}
