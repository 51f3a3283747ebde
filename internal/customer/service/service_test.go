package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	"github.com/newsmint/kiosk/internal/customer/domain"
	"github.com/newsmint/kiosk/internal/customer/repository"
	"github.com/newsmint/kiosk/internal/msisdn"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Customer{}))

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(ServiceParam{
		Config: config.Config{
			HeavyUserVisitThreshold: 3,
			RecentSessionCap:        100,
		},
		Pools:      tenant.NewStatic(db),
		Log:        zap.NewNop(),
		Repo:       repository.Provide(),
		Normalizer: msisdn.NewNormalizer("49"),
		Clock:      fake,
	})
	return svc, fake
}

func tenantCtx() context.Context {
	return tenantctx.WithTenantID(context.Background(), 1)
}

func TestUpsertIdentifiedCreatesThenAccumulates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantCtx()

	c, err := svc.UpsertIdentified(ctx, domain.IdentifyInput{
		RawMSISDN:   "01712345678",
		LandingPage: "Sport News",
		Campaign:    "spring",
		Carrier:     "telekom",
	})
	require.NoError(t, err)
	require.Equal(t, "491712345678", c.MSISDN)
	require.Equal(t, domain.StatusIdentified, c.Status)
	require.NotNil(t, c.IdentifiedAt)
	require.EqualValues(t, 1, c.TotalVisits)
	require.Equal(t, "sport-news", c.FirstLandingPage)
	require.Equal(t, []string{"sport-news"}, []string(c.LandingPages))

	// Second sighting from another page; attribution stays, counters move.
	c, err = svc.UpsertIdentified(ctx, domain.IdentifyInput{
		RawMSISDN:   "+491712345678",
		LandingPage: "crime-desk",
		Campaign:    "autumn",
		Carrier:     "vodafone",
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, c.TotalVisits)
	require.Equal(t, "sport-news", c.FirstLandingPage)
	require.Equal(t, "crime-desk", c.LastLandingPage)
	require.Equal(t, "spring", c.TopCampaign)
	require.Equal(t, "telekom", c.Carrier)
	require.ElementsMatch(t, []string{"sport-news", "crime-desk"}, []string(c.LandingPages))

	// Revisiting a known page does not duplicate set membership.
	c, err = svc.UpsertIdentified(ctx, domain.IdentifyInput{
		RawMSISDN:   "01712345678",
		LandingPage: "sport-news",
	})
	require.NoError(t, err)
	require.Len(t, c.LandingPages, 2)
}

func TestStatusNeverRegresses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantCtx()

	c, err := svc.ConvertToCustomer(ctx, "01712345678", 499)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCustomer, c.Status)

	c, err = svc.UpsertIdentified(ctx, domain.IdentifyInput{RawMSISDN: "01712345678"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCustomer, c.Status)

	c, err = svc.RecordVisit(ctx, domain.IdentifyInput{RawMSISDN: "01712345678"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCustomer, c.Status)
}

func TestConvertToCustomerAccounting(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := tenantCtx()

	c, err := svc.ConvertToCustomer(ctx, "01712345678", 500)
	require.NoError(t, err)
	require.EqualValues(t, 1, c.TotalPurchases)
	require.EqualValues(t, 500, c.TotalBillingAmount)
	require.EqualValues(t, 500, c.AvgPurchaseValue)
	require.EqualValues(t, 0, c.RepurchaseCount)
	require.NotNil(t, c.ConvertedAt)
	firstConverted := *c.ConvertedAt
	require.NotNil(t, c.FirstPurchaseAt)

	fake.Advance(time.Hour)
	c, err = svc.ConvertToCustomer(ctx, "01712345678", 301)
	require.NoError(t, err)
	require.EqualValues(t, 2, c.TotalPurchases)
	require.EqualValues(t, 801, c.TotalBillingAmount)
	require.EqualValues(t, 400, c.AvgPurchaseValue)
	require.EqualValues(t, 1, c.RepurchaseCount)
	require.Equal(t, firstConverted, *c.ConvertedAt)
	require.True(t, c.LastPurchaseAt.After(*c.FirstPurchaseAt))
}

func TestHeavyUserLatchesAtThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantCtx()

	for i := 0; i < 2; i++ {
		c, err := svc.RecordVisit(ctx, domain.IdentifyInput{RawMSISDN: "01712345678"})
		require.NoError(t, err)
		require.False(t, c.HeavyUser)
	}

	c, err := svc.RecordVisit(ctx, domain.IdentifyInput{RawMSISDN: "01712345678"})
	require.NoError(t, err)
	require.EqualValues(t, 3, c.TotalVisits)
	require.True(t, c.HeavyUser)
}

func TestRecentSessionRingIsBounded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantCtx()

	for i := 0; i < 105; i++ {
		_, err := svc.UpsertIdentified(ctx, domain.IdentifyInput{
			RawMSISDN: "01712345678",
			SessionID: fmt.Sprintf("sess-%d", i),
		})
		require.NoError(t, err)
	}

	c, err := svc.FindByMSISDN(ctx, "01712345678")
	require.NoError(t, err)
	require.Len(t, c.RecentSessions, 100)
	// Oldest entries evicted, newest kept.
	require.Equal(t, "sess-5", c.RecentSessions[0])
	require.Equal(t, "sess-104", c.RecentSessions[99])
}

func TestLandingPageStatsFunnel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantCtx()

	// Three identified visitors on the page, one converts twice.
	for i := 0; i < 3; i++ {
		_, err := svc.UpsertIdentified(ctx, domain.IdentifyInput{
			RawMSISDN:   fmt.Sprintf("017123456%02d", i),
			LandingPage: "sport-news",
		})
		require.NoError(t, err)
	}
	_, err := svc.ConvertToCustomer(ctx, "01712345600", 400)
	require.NoError(t, err)
	_, err = svc.ConvertToCustomer(ctx, "01712345600", 600)
	require.NoError(t, err)

	// Unrelated visitor on another page.
	_, err = svc.UpsertIdentified(ctx, domain.IdentifyInput{
		RawMSISDN:   "01799999999",
		LandingPage: "crime-desk",
	})
	require.NoError(t, err)

	stats, err := svc.LandingPageStats(ctx, "Sport News")
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Visitors)
	require.EqualValues(t, 3, stats.Identified)
	require.EqualValues(t, 1, stats.Customers)
	require.EqualValues(t, 1000, stats.Revenue)
	require.InDelta(t, 1.0/3.0, stats.ConversionRate, 0.001)
	require.InDelta(t, 1.0, stats.RepurchaseRate, 0.001)
	require.EqualValues(t, 500, stats.AverageOrderValue)
}

func TestVisitsLast30Days(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := tenantCtx()

	_, err := svc.RecordVisit(ctx, domain.IdentifyInput{RawMSISDN: "01712345678"})
	require.NoError(t, err)

	fake.Advance(40 * 24 * time.Hour)
	_, err = svc.RecordVisit(ctx, domain.IdentifyInput{RawMSISDN: "01712345678"})
	require.NoError(t, err)

	c, err := svc.FindByMSISDN(ctx, "01712345678")
	require.NoError(t, err)
	require.EqualValues(t, 2, c.TotalVisits)
	require.Equal(t, 1, c.VisitsLast30Days(fake.Now()))
}
