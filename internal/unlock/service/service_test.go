package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/msisdn"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/internal/unlock/domain"
	"github.com/newsmint/kiosk/internal/unlock/repository"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UnlockGrant{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(ServiceParam{
		Pools:      tenant.NewStatic(db),
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		Normalizer: msisdn.NewNormalizer("49"),
		Clock:      fake,
	})
	return svc, fake, db
}

func tenantCtx() context.Context {
	return tenantctx.WithTenantID(context.Background(), 1)
}

func TestGrantIsExclusivePerTransaction(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := tenantCtx()

	first, err := svc.Grant(ctx, domain.GrantRequest{
		RawMSISDN:     "01712345678",
		ContentItemID: "article-42",
		TransactionID: "TXN-1",
		Amount:        299,
	})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, domain.StatusCompleted, first.Grant.Status)

	second, err := svc.Grant(ctx, domain.GrantRequest{
		RawMSISDN:     "+491712345678",
		ContentItemID: "article-42",
		TransactionID: "TXN-1",
		Amount:        299,
	})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Grant.ID, second.Grant.ID)

	var count int64
	require.NoError(t, db.Model(&domain.UnlockGrant{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestHasAccessAndRevoke(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := tenantCtx()

	ok, err := svc.HasAccess(ctx, "01712345678", "article-42")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.Grant(ctx, domain.GrantRequest{
		RawMSISDN:     "01712345678",
		ContentItemID: "article-42",
		TransactionID: "TXN-1",
		Amount:        299,
	})
	require.NoError(t, err)

	ok, err = svc.HasAccess(ctx, "01712345678", "article-42")
	require.NoError(t, err)
	require.True(t, ok)

	// Any raw spelling of the identifier resolves the same entitlement.
	ok, err = svc.HasAccess(ctx, "0049 171 2345678", "article-42")
	require.NoError(t, err)
	require.True(t, ok)

	grants, err := svc.Revoke(ctx, "TXN-1", domain.StatusRefunded)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, domain.StatusRefunded, grants[0].Status)

	// The revocation is visible immediately, despite the access cache.
	ok, err = svc.HasAccess(ctx, "01712345678", "article-42")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRevokeRequiresTransactionID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Revoke(tenantCtx(), "  ", domain.StatusRefunded)
	require.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestExpiredGrantDeniesAccess(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := tenantCtx()

	expires := fake.Now().Add(time.Hour)
	_, err := svc.Grant(ctx, domain.GrantRequest{
		RawMSISDN:     "01712345678",
		ContentItemID: "article-42",
		TransactionID: "TXN-1",
		Amount:        299,
		ExpiresAt:     &expires,
	})
	require.NoError(t, err)

	ok, err := svc.HasAccess(ctx, "01712345678", "article-42")
	require.NoError(t, err)
	require.True(t, ok)

	fake.Advance(2 * time.Hour)
	ok, err = svc.HasAccess(ctx, "01712345678", "article-42")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantWithoutTransactionIDCollapses(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := tenantCtx()

	first, err := svc.Grant(ctx, domain.GrantRequest{
		RawMSISDN:     "01712345678",
		ContentItemID: "article-42",
		Amount:        299,
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := svc.Grant(ctx, domain.GrantRequest{
		RawMSISDN:     "01712345678",
		ContentItemID: "article-42",
		Amount:        299,
	})
	require.NoError(t, err)
	require.False(t, second.Created)

	var count int64
	require.NoError(t, db.Model(&domain.UnlockGrant{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
