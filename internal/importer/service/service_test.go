package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	billingrepo "github.com/newsmint/kiosk/internal/billingevent/repository"
	billingservice "github.com/newsmint/kiosk/internal/billingevent/service"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/importer/domain"
	"github.com/newsmint/kiosk/internal/importer/repository"
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
	require.NoError(t, db.AutoMigrate(
		&billingdomain.BillingEvent{},
		&domain.ImportBatch{},
		&domain.ImportError{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	pools := tenant.NewStatic(db)
	normalizer := msisdn.NewNormalizer("49")

	billing := billingservice.New(billingservice.ServiceParam{
		Pools:      pools,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       billingrepo.Provide(),
		Normalizer: normalizer,
		Clock:      fake,
	})

	svc := New(ServiceParam{
		Pools:   pools,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Billing: billing,
		Clock:   fake,
	})
	return svc, fake, db
}

func tenantCtx() context.Context {
	return tenantctx.WithTenantID(context.Background(), 1)
}

func validRow(txn string) domain.Row {
	return domain.Row{
		"msisdn":         "01712345678",
		"transaction_id": txn,
		"amount":         "4,99",
		"status":         "OK",
		"date":           "2024-02-29 10:00:00",
	}
}

func TestProcessRowsMixedOutcomes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := tenantCtx()

	batch, err := svc.CreateBatch(ctx, domain.CreateBatchRequest{FileName: "feb.csv"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, batch.Status)
	require.NotEmpty(t, batch.Ref)

	rows := []domain.Row{
		validRow("TXN-1"),
		validRow("TXN-1"), // exact replay of the first row
		{"transaction_id": "TXN-2", "amount": "4,99"},       // missing identifier
		{"msisdn": "0171", "transaction_id": "TXN-3"},       // missing amount
		{"msisdn": "0171", "transaction_id": "TXN-4", "amount": "abc"}, // unparsable
	}

	updated, err := svc.ProcessRows(ctx, batch.Ref, rows)
	require.NoError(t, err)
	require.EqualValues(t, 5, updated.TotalRows)
	require.EqualValues(t, 1, updated.Accepted)
	require.EqualValues(t, 1, updated.Duplicates)
	require.EqualValues(t, 3, updated.Rejected)
	require.Equal(t, domain.StatusProcessing, updated.Status)

	detail, err := svc.GetBatch(ctx, batch.Ref)
	require.NoError(t, err)
	require.Len(t, detail.Errors, 3)
	require.Equal(t, 3, detail.Errors[0].RowNumber)
	require.Equal(t, "msisdn", detail.Errors[0].Field)
}

type flakyBilling struct {
	billingdomain.Service
	failOn string
}

func (f *flakyBilling) Record(ctx context.Context, req billingdomain.RecordRequest) (billingdomain.RecordResult, error) {
	if req.TransactionID != nil && *req.TransactionID == f.failOn {
		return billingdomain.RecordResult{}, errors.New("connection reset")
	}
	return f.Service.Record(ctx, req)
}

func TestProcessRowsSurvivesStoreFailure(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&billingdomain.BillingEvent{},
		&domain.ImportBatch{},
		&domain.ImportError{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	pools := tenant.NewStatic(db)

	billing := billingservice.New(billingservice.ServiceParam{
		Pools:      pools,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       billingrepo.Provide(),
		Normalizer: msisdn.NewNormalizer("49"),
		Clock:      fake,
	})
	svc := New(ServiceParam{
		Pools:   pools,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Billing: &flakyBilling{Service: billing, failOn: "TXN-2"},
		Clock:   fake,
	})
	ctx := tenantCtx()

	batch, err := svc.CreateBatch(ctx, domain.CreateBatchRequest{FileName: "feb.csv"})
	require.NoError(t, err)

	rows := []domain.Row{
		validRow("TXN-1"),
		validRow("TXN-2"),
		validRow("TXN-3"),
	}

	// A store failure on one row must not take down the batch.
	updated, err := svc.ProcessRows(ctx, batch.Ref, rows)
	require.NoError(t, err)
	require.EqualValues(t, 3, updated.TotalRows)
	require.EqualValues(t, 2, updated.Accepted)
	require.EqualValues(t, 1, updated.Rejected)
	require.Equal(t, domain.StatusProcessing, updated.Status)

	detail, err := svc.GetBatch(ctx, batch.Ref)
	require.NoError(t, err)
	require.Len(t, detail.Errors, 1)
	require.Equal(t, 2, detail.Errors[0].RowNumber)
	require.Contains(t, detail.Errors[0].Message, "storage failure")
}

func TestRowAmountScaling(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := tenantCtx()

	batch, err := svc.CreateBatch(ctx, domain.CreateBatchRequest{})
	require.NoError(t, err)

	row := validRow("TXN-1")
	row["amount"] = "4,99"
	outcome, err := svc.ProcessRow(ctx, batch.Ref, 1, row)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, outcome)

	row = validRow("TXN-2")
	row["amount"] = "499"
	outcome, err = svc.ProcessRow(ctx, batch.Ref, 2, row)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, outcome)

	var events []*billingdomain.BillingEvent
	require.NoError(t, db.Order("id asc").Find(&events).Error)
	require.Len(t, events, 2)
	// Both spellings mean the same 499 cents.
	require.EqualValues(t, 499, events[0].Amount)
	require.EqualValues(t, 499, events[1].Amount)
	require.Equal(t, billingdomain.SourceImport, events[0].Source)
	require.Equal(t, &batch.ID, events[0].ImportBatchID)
}

func TestRowStatusKeywords(t *testing.T) {
	require.Equal(t, billingdomain.StatusRefunded, parseStatus("Customer REFUND issued"))
	require.Equal(t, billingdomain.StatusChargeback, parseStatus("chargeback"))
	require.Equal(t, billingdomain.StatusFailed, parseStatus("FAILED"))
	require.Equal(t, billingdomain.StatusPending, parseStatus("pending confirmation"))
	require.Equal(t, billingdomain.StatusCancelled, parseStatus("Cancelled by user"))
	require.Equal(t, billingdomain.StatusBilled, parseStatus("OK"))
	require.Equal(t, billingdomain.StatusBilled, parseStatus(""))
}

func TestRowDateFallsBackToNow(t *testing.T) {
	svc, fake, db := newTestService(t)
	ctx := tenantCtx()

	batch, err := svc.CreateBatch(ctx, domain.CreateBatchRequest{})
	require.NoError(t, err)

	row := validRow("TXN-1")
	row["date"] = "not a date"
	_, err = svc.ProcessRow(ctx, batch.Ref, 1, row)
	require.NoError(t, err)

	var event billingdomain.BillingEvent
	require.NoError(t, db.First(&event).Error)
	require.Equal(t, fake.Now().Unix(), event.EventAt.Unix())
}

func TestColumnMapping(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := tenantCtx()

	batch, err := svc.CreateBatch(ctx, domain.CreateBatchRequest{
		ColumnMapping: map[string]string{
			domain.FieldMSISDN:        "Rufnummer",
			domain.FieldTransactionID: "Referenz",
			domain.FieldAmount:        "Betrag",
		},
	})
	require.NoError(t, err)

	outcome, err := svc.ProcessRow(ctx, batch.Ref, 1, domain.Row{
		"Rufnummer": "01712345678",
		"Referenz":  "TXN-1",
		"Betrag":    "9,99",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAccepted, outcome)

	var event billingdomain.BillingEvent
	require.NoError(t, db.First(&event).Error)
	require.Equal(t, "491712345678", event.MSISDN)
	require.EqualValues(t, 999, event.Amount)
}

func TestFinalizeIsTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := tenantCtx()

	batch, err := svc.CreateBatch(ctx, domain.CreateBatchRequest{})
	require.NoError(t, err)

	finalized, err := svc.FinalizeBatch(ctx, batch.Ref)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, finalized.Status)
	require.NotNil(t, finalized.CompletedAt)

	// Finalizing again returns the batch unchanged; cancel cannot
	// override a terminal status.
	again, err := svc.FinalizeBatch(ctx, batch.Ref)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, again.Status)

	cancelled, err := svc.CancelBatch(ctx, batch.Ref)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, cancelled.Status)

	_, err = svc.ProcessRow(ctx, batch.Ref, 1, validRow("TXN-9"))
	require.ErrorIs(t, err, domain.ErrBatchFinalized)
}

func TestGetBatchUnknownRef(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetBatch(tenantCtx(), "01HTXXXXXXXXXXXXXXXXXXXXXX")
	require.ErrorIs(t, err, domain.ErrBatchNotFound)
}
