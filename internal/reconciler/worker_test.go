package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	billingrepo "github.com/newsmint/kiosk/internal/billingevent/repository"
	billingservice "github.com/newsmint/kiosk/internal/billingevent/service"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	customerdomain "github.com/newsmint/kiosk/internal/customer/domain"
	customerrepo "github.com/newsmint/kiosk/internal/customer/repository"
	customerservice "github.com/newsmint/kiosk/internal/customer/service"
	importerdomain "github.com/newsmint/kiosk/internal/importer/domain"
	importerrepo "github.com/newsmint/kiosk/internal/importer/repository"
	"github.com/newsmint/kiosk/internal/msisdn"
	"github.com/newsmint/kiosk/internal/settlement"
	"github.com/newsmint/kiosk/internal/tenant"
	unlockdomain "github.com/newsmint/kiosk/internal/unlock/domain"
	unlockrepo "github.com/newsmint/kiosk/internal/unlock/repository"
	unlockservice "github.com/newsmint/kiosk/internal/unlock/service"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	worker   *Worker
	billing  billingdomain.Service
	customer customerdomain.Service
	batches  importerdomain.Repository
	clock    *clock.FakeClock
	db       *gorm.DB
	node     *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&billingdomain.BillingEvent{},
		&customerdomain.Customer{},
		&unlockdomain.UnlockGrant{},
		&importerdomain.ImportBatch{},
		&importerdomain.ImportError{},
	))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	pools := tenant.NewStatic(db)
	normalizer := msisdn.NewNormalizer("49")
	log := zap.NewNop()
	cfg := config.Config{
		HeavyUserVisitThreshold: 3,
		RecentSessionCap:        100,
		ReconcileInterval:       300,
		ReconcileWindowHours:    48,
	}

	billing := billingservice.New(billingservice.ServiceParam{
		Pools: pools, Log: log, GenID: node,
		Repo: billingrepo.Provide(), Normalizer: normalizer, Clock: fake,
	})
	customer := customerservice.New(customerservice.ServiceParam{
		Config: cfg, Pools: pools, Log: log,
		Repo: customerrepo.Provide(), Normalizer: normalizer, Clock: fake,
	})
	unlock := unlockservice.New(unlockservice.ServiceParam{
		Pools: pools, Log: log, GenID: node,
		Repo: unlockrepo.Provide(), Normalizer: normalizer, Clock: fake,
	})
	pipeline := settlement.New(settlement.Param{
		Log: log, Pools: pools, Billing: billing, Customer: customer,
		Unlock: unlock, Clock: fake,
	})
	batches := importerrepo.Provide()

	worker := New(Param{
		Config: cfg, Log: log, Clock: fake, Pools: pools,
		Pipeline: pipeline, ImporterRepo: batches,
	})

	return &fixture{
		worker: worker, billing: billing, customer: customer,
		batches: batches, clock: fake, db: db, node: node,
	}
}

func tenantCtx() context.Context {
	return tenantctx.WithTenantID(context.Background(), 1)
}

func TestRunOnceSettlesRecentEvents(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx()

	txn := "TXN-1"
	_, err := f.billing.Record(ctx, billingdomain.RecordRequest{
		RawMSISDN:     "01712345678",
		Source:        billingdomain.SourceDimoco,
		Status:        billingdomain.StatusCompleted,
		Amount:        499,
		ContentItemID: "article-42",
		TransactionID: &txn,
	})
	require.NoError(t, err)

	require.NoError(t, f.worker.RunOnce(ctx))

	c, err := f.customer.FindByMSISDN(ctx, "01712345678")
	require.NoError(t, err)
	require.Equal(t, customerdomain.StatusCustomer, c.Status)
	require.EqualValues(t, 1, c.TotalPurchases)

	// A second pass changes nothing.
	require.NoError(t, f.worker.RunOnce(ctx))
	c, err = f.customer.FindByMSISDN(ctx, "01712345678")
	require.NoError(t, err)
	require.EqualValues(t, 1, c.TotalPurchases)
}

func TestRunOnceIgnoresEventsOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx()

	txn := "TXN-1"
	_, err := f.billing.Record(ctx, billingdomain.RecordRequest{
		RawMSISDN:     "01712345678",
		Source:        billingdomain.SourceDimoco,
		Status:        billingdomain.StatusCompleted,
		Amount:        499,
		TransactionID: &txn,
	})
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	require.NoError(t, f.worker.RunOnce(ctx))

	c, err := f.customer.FindByMSISDN(ctx, "01712345678")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestRunOnceFailsStuckBatches(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx()

	old := f.clock.Now().Add(-30 * time.Hour)
	stale := &importerdomain.ImportBatch{
		ID: f.node.Generate(), Ref: "stale", TenantID: 1,
		Status: importerdomain.StatusProcessing, StartedAt: old,
		CreatedAt: old, UpdatedAt: old,
	}
	fresh := &importerdomain.ImportBatch{
		ID: f.node.Generate(), Ref: "fresh", TenantID: 1,
		Status: importerdomain.StatusProcessing, StartedAt: f.clock.Now(),
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.batches.InsertBatch(ctx, f.db, stale))
	require.NoError(t, f.batches.InsertBatch(ctx, f.db, fresh))

	require.NoError(t, f.worker.RunOnce(ctx))

	got, err := f.batches.FindByRef(ctx, f.db, 1, "stale")
	require.NoError(t, err)
	require.Equal(t, importerdomain.StatusFailed, got.Status)

	got, err = f.batches.FindByRef(ctx, f.db, 1, "fresh")
	require.NoError(t, err)
	require.Equal(t, importerdomain.StatusProcessing, got.Status)
}
