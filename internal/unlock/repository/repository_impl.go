package repository

import (
	"context"
	"errors"
	"time"

	"github.com/newsmint/kiosk/internal/unlock/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, grant *domain.UnlockGrant) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"},
				{Name: "msisdn"},
				{Name: "content_item_id"},
				{Name: "transaction_id"},
			},
			DoNothing: true,
		}).
		Create(grant)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, tenantID int64, msisdn, contentItemID, transactionID string) (*domain.UnlockGrant, error) {
	var grant domain.UnlockGrant
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND msisdn = ? AND content_item_id = ? AND transaction_id = ?",
			tenantID, msisdn, contentItemID, transactionID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *repo) HasCompletedGrant(ctx context.Context, db *gorm.DB, tenantID int64, msisdn, contentItemID string, now time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.UnlockGrant{}).
		Where("tenant_id = ? AND msisdn = ? AND content_item_id = ? AND status = ?",
			tenantID, msisdn, contentItemID, domain.StatusCompleted).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) UpdateStatusByTransactionID(ctx context.Context, db *gorm.DB, tenantID int64, transactionID string, status domain.Status, now time.Time) ([]*domain.UnlockGrant, error) {
	err := db.WithContext(ctx).Exec(
		`UPDATE unlock_grants SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND transaction_id = ?`,
		status, now, tenantID, transactionID,
	).Error
	if err != nil {
		return nil, err
	}

	var grants []*domain.UnlockGrant
	err = db.WithContext(ctx).
		Where("tenant_id = ? AND transaction_id = ?", tenantID, transactionID).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *repo) FindByMSISDN(ctx context.Context, db *gorm.DB, tenantID int64, msisdn string, limit int) ([]*domain.UnlockGrant, error) {
	if limit <= 0 {
		limit = 50
	}
	var grants []*domain.UnlockGrant
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND msisdn = ?", tenantID, msisdn).
		Order("granted_at desc").
		Limit(limit).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}
