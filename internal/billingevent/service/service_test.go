package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/billingevent/repository"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/msisdn"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.BillingEvent{}))

	node, err := snowflake.NewNode(1)
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

func TestRecordNormalizesAndDefaults(t *testing.T) {
	svc, fake, _ := newTestService(t)

	res, err := svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN: "0171 234-5678",
		Source:    domain.SourceDimoco,
		Amount:    299,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, "491712345678", res.Event.MSISDN)
	require.Equal(t, domain.StatusBilled, res.Event.Status)
	require.Equal(t, "EUR", res.Event.Currency)
	require.Equal(t, fake.Now(), res.Event.EventAt)
	require.NotEmpty(t, res.Event.EventID)
}

func TestRecordCanonicalizesSuppliedMSISDN(t *testing.T) {
	svc, _, db := newTestService(t)

	eventAt := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	first, err := svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN: "0171 2345678",
		Source:    domain.SourceDimoco,
		Amount:    499,
		EventAt:   eventAt,
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	// The same logical event arriving with a pre-filled identifier in
	// local dial form must collapse onto the stored row.
	second, err := svc.Record(tenantCtx(), domain.RecordRequest{
		MSISDN:  "01712345678",
		Source:  domain.SourceDimoco,
		Amount:  499,
		EventAt: eventAt,
	})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Event.EventID, second.Event.EventID)
	require.Equal(t, "491712345678", second.Event.MSISDN)

	var count int64
	require.NoError(t, db.Model(&domain.BillingEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRecordIsIdempotent(t *testing.T) {
	svc, _, db := newTestService(t)

	req := domain.RecordRequest{
		RawMSISDN:   "+49 171 2345678",
		Source:      domain.SourceDimoco,
		Amount:      499,
		ProductCode: "daypass",
		EventAt:     time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}

	first, err := svc.Record(tenantCtx(), req)
	require.NoError(t, err)
	require.True(t, first.Created)

	// Same logical event in a different raw format.
	req.RawMSISDN = "00491712345678"
	second, err := svc.Record(tenantCtx(), req)
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Event.EventID, second.Event.EventID)
	require.Equal(t, first.Event.ID, second.Event.ID)

	var count int64
	require.NoError(t, db.Model(&domain.BillingEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRecordTransactionIDWinsOnce(t *testing.T) {
	svc, _, db := newTestService(t)

	txn := "DIMOCO-TXN-1"
	first, err := svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN:     "01712345678",
		Source:        domain.SourceDimoco,
		Amount:        199,
		TransactionID: &txn,
		EventAt:       time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	// Different amount means a different content hash, but the carrier
	// transaction id still pins it to the stored event.
	second, err := svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN:     "01712345678",
		Source:        domain.SourceDimoco,
		Amount:        299,
		TransactionID: &txn,
		EventAt:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Event.ID, second.Event.ID)
	require.EqualValues(t, 199, second.Event.Amount)

	var count int64
	require.NoError(t, db.Model(&domain.BillingEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRecordValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Record(context.Background(), domain.RecordRequest{
		RawMSISDN: "01712345678",
		Amount:    100,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN: "---",
		Amount:    100,
	})
	require.ErrorIs(t, err, domain.ErrInvalidIdentifier)

	_, err = svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN: "01712345678",
		Amount:    0,
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN: "01712345678",
		Amount:    100,
		Source:    "carrier-pigeon",
	})
	require.ErrorIs(t, err, domain.ErrInvalidSource)

	_, err = svc.Record(tenantCtx(), domain.RecordRequest{
		RawMSISDN: "01712345678",
		Amount:    100,
		Status:    "maybe",
	})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestUpdateStatus(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := tenantCtx()

	res, err := svc.Record(ctx, domain.RecordRequest{
		RawMSISDN: "01712345678",
		Source:    domain.SourceDimoco,
		Amount:    299,
	})
	require.NoError(t, err)

	fake.Advance(time.Minute)
	updated, err := svc.UpdateStatus(ctx, res.Event.EventID, domain.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, domain.StatusCompleted, updated.Status)

	stored, err := svc.GetByEventID(ctx, res.Event.EventID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestUpdateStatusUnknownEvent(t *testing.T) {
	svc, _, _ := newTestService(t)

	updated, err := svc.UpdateStatus(tenantCtx(), "no-such-event", domain.StatusRefunded)
	require.NoError(t, err)
	require.Nil(t, updated)
}

func TestSearchFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := tenantCtx()

	for i, src := range []domain.Source{domain.SourceDimoco, domain.SourceImport, domain.SourceDimoco} {
		_, err := svc.Record(ctx, domain.RecordRequest{
			RawMSISDN: "0171234567" + string(rune('0'+i)),
			Source:    src,
			Amount:    int64(100 + i),
		})
		require.NoError(t, err)
	}

	resp, err := svc.Search(ctx, domain.SearchRequest{Source: "dimoco"})
	require.NoError(t, err)
	require.EqualValues(t, 2, resp.Total)
	require.Len(t, resp.Events, 2)

	resp, err = svc.Search(ctx, domain.SearchRequest{MSISDN: "01712345671"})
	require.NoError(t, err)
	require.EqualValues(t, 1, resp.Total)
	require.Equal(t, "491712345671", resp.Events[0].MSISDN)
}

func TestStatsRollsUpBySourceAndStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := tenantCtx()

	amounts := []int64{100, 200, 300}
	for i, amount := range amounts {
		_, err := svc.Record(ctx, domain.RecordRequest{
			RawMSISDN: "0171234567" + string(rune('0'+i)),
			Source:    domain.SourceDimoco,
			Amount:    amount,
		})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalEvents)
	require.EqualValues(t, 600, stats.TotalAmount)
	require.EqualValues(t, 3, stats.BySource["dimoco"])
	require.EqualValues(t, 3, stats.ByStatus["billed"])
}
