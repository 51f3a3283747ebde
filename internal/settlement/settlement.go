// Package settlement runs the post-completion side effects of billing
// events: advancing the customer ledger and issuing content unlocks.
// Every step is idempotent, so the pipeline can be replayed at will.
package settlement

import (
	"context"
	"time"

	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/clock"
	customerdomain "github.com/newsmint/kiosk/internal/customer/domain"
	obsmetrics "github.com/newsmint/kiosk/internal/observability/metrics"
	"github.com/newsmint/kiosk/internal/tenant"
	unlockdomain "github.com/newsmint/kiosk/internal/unlock/domain"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Pipeline interface {
	// OnCompleted converts the customer and grants the unlock for a
	// billing event that reached completed.
	OnCompleted(ctx context.Context, event *billingdomain.BillingEvent) error

	// OnReversed mirrors a refund or chargeback onto the grants the
	// event produced.
	OnReversed(ctx context.Context, event *billingdomain.BillingEvent) error

	// Replay re-runs OnCompleted for every completed event inside the
	// window. Convergent: replayed events change nothing.
	Replay(ctx context.Context, window time.Duration) (int64, error)
}

type Param struct {
	fx.In

	Log      *zap.Logger
	Pools    *tenant.Registry
	Billing  billingdomain.Service
	Customer customerdomain.Service
	Unlock   unlockdomain.Service
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type pipeline struct {
	log      *zap.Logger
	pools    *tenant.Registry
	billing  billingdomain.Service
	customer customerdomain.Service
	unlock   unlockdomain.Service
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
}

func New(p Param) Pipeline {
	return &pipeline{
		log:      p.Log.Named("settlement"),
		pools:    p.Pools,
		billing:  p.Billing,
		customer: p.Customer,
		unlock:   p.Unlock,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

func (p *pipeline) OnCompleted(ctx context.Context, event *billingdomain.BillingEvent) error {
	ctx = tenantctx.WithTenantID(ctx, event.TenantID)

	db, err := p.pools.DB(ctx)
	if err != nil {
		return err
	}

	// Claim and side effects commit together. The claim makes
	// concurrent workers and replays run the conversion at most once;
	// a failure or crash rolls the claim back with everything else, so
	// the next replay picks the event up again.
	return db.Transaction(func(tx *gorm.DB) error {
		txCtx := tenant.WithTx(ctx, tx)
		claimed, err := p.billing.MarkSettled(txCtx, event.EventID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		return p.settle(txCtx, event)
	})
}

func (p *pipeline) settle(ctx context.Context, event *billingdomain.BillingEvent) error {
	if _, err := p.customer.ConvertToCustomer(ctx, event.MSISDN, event.Amount); err != nil {
		return err
	}

	if event.ContentItemID == "" {
		return nil
	}
	transactionID := ""
	if event.TransactionID != nil {
		transactionID = *event.TransactionID
	}
	_, err := p.unlock.Grant(ctx, unlockdomain.GrantRequest{
		RawMSISDN:     event.MSISDN,
		ContentItemID: event.ContentItemID,
		TransactionID: transactionID,
		EventID:       event.EventID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		Source:        grantSource(event.Source),
	})
	return err
}

func (p *pipeline) OnReversed(ctx context.Context, event *billingdomain.BillingEvent) error {
	if event.TransactionID == nil || *event.TransactionID == "" {
		p.log.Warn("reversal without transaction id",
			zap.String("event_id", event.EventID),
			zap.String("status", string(event.Status)),
		)
		return nil
	}
	ctx = tenantctx.WithTenantID(ctx, event.TenantID)

	_, err := p.unlock.Revoke(ctx, *event.TransactionID, unlockdomain.StatusRefunded)
	return err
}

// Replay covers the base pool and every dedicated tenant pool, so
// events on tenant-specific databases converge too. A pool that fails
// to replay is logged and skipped; the others still run.
func (p *pipeline) Replay(ctx context.Context, window time.Duration) (int64, error) {
	since := p.clock.Now().Add(-window)

	replayed, err := p.replayPool(ctx, since)
	if err != nil {
		return replayed, err
	}
	for _, tenantID := range p.pools.DedicatedTenantIDs() {
		n, err := p.replayPool(tenantctx.WithTenantID(ctx, tenantID), since)
		replayed += n
		if err != nil {
			p.log.Error("replay failed for dedicated tenant",
				zap.Int64("tenant_id", tenantID),
				zap.Error(err),
			)
		}
	}

	p.metrics.RecordSettlementReplay(ctx, replayed)
	if replayed > 0 {
		p.log.Info("settlement replay finished",
			zap.Int64("events", replayed),
			zap.Duration("window", window),
		)
	}
	return replayed, nil
}

func (p *pipeline) replayPool(ctx context.Context, since time.Time) (int64, error) {
	events, err := p.billing.UnsettledSince(ctx, since, 0)
	if err != nil {
		return 0, err
	}

	var replayed int64
	for _, event := range events {
		if err := p.OnCompleted(ctx, event); err != nil {
			p.log.Error("replay step failed",
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			continue
		}
		replayed++
	}
	return replayed, nil
}

func grantSource(source billingdomain.Source) unlockdomain.Source {
	switch source {
	case billingdomain.SourceDimoco:
		return unlockdomain.SourceProcessor
	case billingdomain.SourceImport:
		return unlockdomain.SourceImport
	default:
		return unlockdomain.SourceManual
	}
}
