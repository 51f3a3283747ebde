package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, batch *ImportBatch) error
	FindByRef(ctx context.Context, db *gorm.DB, tenantID int64, ref string) (*ImportBatch, error)

	// IncrementCounters bumps total rows plus the outcome counter in
	// one statement so concurrent row writers never lose an increment.
	IncrementCounters(ctx context.Context, db *gorm.DB, batchID snowflake.ID, outcome Outcome, now time.Time) error

	InsertError(ctx context.Context, db *gorm.DB, importError *ImportError) error
	ListErrors(ctx context.Context, db *gorm.DB, batchID snowflake.ID, limit int) ([]*ImportError, error)

	// Finalize moves the batch out of processing. It is a no-op when
	// the batch already reached a terminal status; returns rows moved.
	Finalize(ctx context.Context, db *gorm.DB, batchID snowflake.ID, status Status, now time.Time) (int64, error)

	// FindStuck lists batches still processing past the given start
	// cutoff, for the background finalizer.
	FindStuck(ctx context.Context, db *gorm.DB, startedBefore time.Time, limit int) ([]*ImportBatch, error)
}
