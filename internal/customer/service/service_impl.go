package service

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	"github.com/newsmint/kiosk/internal/customer/domain"
	"github.com/newsmint/kiosk/internal/msisdn"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Config     config.Config
	Pools      *tenant.Registry
	Log        *zap.Logger
	Repo       domain.Repository
	Normalizer msisdn.Normalizer
	Clock      clock.Clock
}

type Service struct {
	cfg        config.Config
	pools      *tenant.Registry
	log        *zap.Logger
	repo       domain.Repository
	normalizer msisdn.Normalizer
	clock      clock.Clock
}

func New(p ServiceParam) domain.Service {
	return &Service{
		cfg:        p.Config,
		pools:      p.Pools,
		log:        p.Log.Named("customer.service"),
		repo:       p.Repo,
		normalizer: p.Normalizer,
		clock:      p.Clock,
	}
}

func (s *Service) UpsertIdentified(ctx context.Context, input domain.IdentifyInput) (*domain.Customer, error) {
	return s.upsert(ctx, input, domain.StatusIdentified)
}

func (s *Service) RecordVisit(ctx context.Context, input domain.IdentifyInput) (*domain.Customer, error) {
	return s.upsert(ctx, input, domain.StatusVisitor)
}

func (s *Service) upsert(ctx context.Context, input domain.IdentifyInput, status domain.Status) (*domain.Customer, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	normalized := s.normalizer.Normalize(input.RawMSISDN)
	if normalized == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	landingPage := canonicalSlug(input.LandingPage)
	now := s.clock.Now()

	err = s.repo.Upsert(ctx, db, domain.UpsertInput{
		TenantID:    tenantID,
		MSISDN:      normalized,
		Status:      status,
		LandingPage: landingPage,
		SessionID:   input.SessionID,
		Campaign:    strings.TrimSpace(input.Campaign),
		Source:      strings.TrimSpace(input.Source),
		Carrier:     strings.TrimSpace(input.Carrier),
		Country:     strings.TrimSpace(input.Country),
	}, s.cfg.HeavyUserVisitThreshold, now)
	if err != nil {
		return nil, err
	}

	err = s.repo.MergeActivity(ctx, db, tenantID, normalized, landingPage, strings.TrimSpace(input.SessionID), s.cfg.RecentSessionCap, now)
	if err != nil {
		return nil, err
	}

	return s.repo.FindByMSISDN(ctx, db, tenantID, normalized)
}

func (s *Service) ConvertToCustomer(ctx context.Context, rawMSISDN string, amount int64) (*domain.Customer, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	normalized := s.normalizer.Normalize(rawMSISDN)
	if normalized == "" {
		return nil, domain.ErrInvalidIdentifier
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.repo.ApplyPurchase(ctx, db, domain.PurchaseInput{
		TenantID: tenantID,
		MSISDN:   normalized,
		Amount:   amount,
	}, now)
	if err != nil {
		return nil, err
	}

	return s.repo.FindByMSISDN(ctx, db, tenantID, normalized)
}

func (s *Service) FindByMSISDN(ctx context.Context, rawMSISDN string) (*domain.Customer, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	normalized := s.normalizer.Normalize(rawMSISDN)
	if normalized == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByMSISDN(ctx, db, tenantID, normalized)
}

func (s *Service) LandingPageStats(ctx context.Context, rawSlug string) (*domain.LandingPageStats, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	canonical := canonicalSlug(rawSlug)
	if canonical == "" {
		return nil, domain.ErrInvalidSlug
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.LandingPageStats(ctx, db, tenantID, canonical)
}

// canonicalSlug normalizes landing page references so membership
// matching works regardless of how the page was spelled at ingest.
func canonicalSlug(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return slug.Make(raw)
}
