package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/newsmint/kiosk/internal/importer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, batch *domain.ImportBatch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) FindByRef(ctx context.Context, db *gorm.DB, tenantID int64, ref string) (*domain.ImportBatch, error) {
	var batch domain.ImportBatch
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND ref = ?", tenantID, ref).
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

func (r *repo) IncrementCounters(ctx context.Context, db *gorm.DB, batchID snowflake.ID, outcome domain.Outcome, now time.Time) error {
	var column string
	switch outcome {
	case domain.OutcomeAccepted:
		column = "accepted"
	case domain.OutcomeRejected:
		column = "rejected"
	case domain.OutcomeDuplicate:
		column = "duplicates"
	default:
		return errors.New("unknown_outcome")
	}
	return db.WithContext(ctx).Exec(
		`UPDATE import_batches
		 SET total_rows = total_rows + 1, `+column+` = `+column+` + 1, updated_at = ?
		 WHERE id = ?`,
		now, batchID,
	).Error
}

func (r *repo) InsertError(ctx context.Context, db *gorm.DB, importError *domain.ImportError) error {
	return db.WithContext(ctx).Create(importError).Error
}

func (r *repo) ListErrors(ctx context.Context, db *gorm.DB, batchID snowflake.ID, limit int) ([]*domain.ImportError, error) {
	if limit <= 0 {
		limit = 100
	}
	var importErrors []*domain.ImportError
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("row_number asc").
		Limit(limit).
		Find(&importErrors).Error
	if err != nil {
		return nil, err
	}
	return importErrors, nil
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, batchID snowflake.ID, status domain.Status, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE import_batches SET status = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, now, now, batchID, domain.StatusProcessing,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindStuck(ctx context.Context, db *gorm.DB, startedBefore time.Time, limit int) ([]*domain.ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	var batches []*domain.ImportBatch
	err := db.WithContext(ctx).
		Where("status = ? AND started_at < ?", domain.StatusProcessing, startedBefore).
		Order("started_at asc").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
