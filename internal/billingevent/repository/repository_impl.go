package repository

import (
	"context"
	"errors"
	"time"

	"github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/pkg/db/option"
	"github.com/newsmint/kiosk/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.BillingEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.BillingEvent, error) {
	var event domain.BillingEvent
	err := db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repo) FindByTransactionID(ctx context.Context, db *gorm.DB, transactionID string) (*domain.BillingEvent, error) {
	var event domain.BillingEvent
	err := db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, eventID string, status domain.Status, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_events SET status = ?, updated_at = ? WHERE event_id = ?`,
		status,
		now,
		eventID,
	).Error
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, filter domain.SearchFilter, page pagination.Pagination) ([]*domain.BillingEvent, int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.BillingEvent{}).
		Where("tenant_id = ?", filter.TenantID)

	if filter.MSISDN != "" {
		stmt = stmt.Where("msisdn = ?", filter.MSISDN)
	}
	if filter.Source != "" {
		stmt = stmt.Where("source = ?", filter.Source)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ImportBatchID != 0 {
		stmt = stmt.Where("import_batch_id = ?", filter.ImportBatchID)
	}
	if filter.From != nil {
		stmt = stmt.Where("event_at >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("event_at <= ?", *filter.To)
	}

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []*domain.BillingEvent
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB, tenantID int64, from, to *time.Time) (*domain.Stats, error) {
	type bucket struct {
		Key    string
		Events int64
		Amount int64
	}

	base := func() *gorm.DB {
		stmt := db.WithContext(ctx).
			Model(&domain.BillingEvent{}).
			Where("tenant_id = ?", tenantID)
		if from != nil {
			stmt = stmt.Where("event_at >= ?", *from)
		}
		if to != nil {
			stmt = stmt.Where("event_at <= ?", *to)
		}
		return stmt
	}

	stats := &domain.Stats{
		BySource: make(map[string]int64),
		ByStatus: make(map[string]int64),
	}

	var bySource []bucket
	err := base().
		Select("source as key, count(*) as events, coalesce(sum(amount), 0) as amount").
		Group("source").
		Scan(&bySource).Error
	if err != nil {
		return nil, err
	}
	for _, b := range bySource {
		stats.BySource[b.Key] = b.Events
		stats.TotalEvents += b.Events
		stats.TotalAmount += b.Amount
	}

	var byStatus []bucket
	err = base().
		Select("status as key, count(*) as events, coalesce(sum(amount), 0) as amount").
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, err
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Events
	}

	return stats, nil
}

func (r *repo) ListUnsettled(ctx context.Context, db *gorm.DB, tenantID int64, since time.Time, limit int) ([]*domain.BillingEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	var events []*domain.BillingEvent
	stmt := db.WithContext(ctx).
		Where("status = ?", domain.StatusCompleted).
		Where("settled_at IS NULL").
		Where("event_at >= ?", since)
	if tenantID != 0 {
		stmt = stmt.Where("tenant_id = ?", tenantID)
	}
	err := stmt.
		Order("event_at asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkSettled(ctx context.Context, db *gorm.DB, eventID string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE billing_events SET settled_at = ?, updated_at = ?
		 WHERE event_id = ? AND settled_at IS NULL`,
		now, now, eventID,
	)
	return res.RowsAffected, res.Error
}
