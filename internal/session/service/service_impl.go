package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	"github.com/newsmint/kiosk/internal/msisdn"
	obsmetrics "github.com/newsmint/kiosk/internal/observability/metrics"
	"github.com/newsmint/kiosk/internal/session/domain"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Config     config.Config
	Pools      *tenant.Registry
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Normalizer msisdn.Normalizer
	Clock      clock.Clock
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg        config.Config
	pools      *tenant.Registry
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	normalizer msisdn.Normalizer
	clock      clock.Clock
	metrics    *obsmetrics.Metrics
}

func New(p ServiceParam) domain.Service {
	return &Service{
		cfg:        p.Config,
		pools:      p.Pools,
		log:        p.Log.Named("session.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		normalizer: p.Normalizer,
		clock:      p.Clock,
		metrics:    p.Metrics,
	}
}

func (s *Service) Track(ctx context.Context, req domain.TrackRequest) (*domain.VisitorSession, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidSession
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.VisitorSession{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		SessionID:   sessionID,
		LandingPage: strings.TrimSpace(req.LandingPage),
		Referrer:    req.Referrer,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		NetworkType: req.NetworkType,
		Confidence:  domain.ConfidenceNone,
		PageViews:   1,
		FirstSeenAt: now,
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Upsert(ctx, db, session); err != nil {
		return nil, err
	}

	stored, err := s.repo.FindBySessionID(ctx, db, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.ID == session.ID {
		s.metrics.RecordSessionTracked(ctx)
	}
	return stored, nil
}

func (s *Service) AttachIdentifier(ctx context.Context, sessionID string, req domain.IdentifyRequest) (*domain.VisitorSession, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidSession
	}

	normalized := s.normalizer.Normalize(req.RawMSISDN)
	if normalized == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	confidence := req.Confidence
	if confidence == "" {
		confidence = domain.ConfidenceUnconfirmed
	}
	if !domain.ValidConfidences[confidence] {
		return nil, domain.ErrInvalidConfidence
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := s.repo.AttachIdentifier(ctx, db, tenantID, sessionID, domain.IdentifierUpdate{
		RawMSISDN:  strings.TrimSpace(req.RawMSISDN),
		MSISDN:     normalized,
		Confidence: confidence,
		Carrier:    strings.TrimSpace(req.Carrier),
		Country:    strings.TrimSpace(req.Country),
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		s.log.Debug("identifier attach skipped",
			zap.String("session_id", sessionID),
			zap.String("confidence", string(confidence)),
		)
	}
	return s.repo.FindBySessionID(ctx, db, tenantID, sessionID)
}

func (s *Service) FindRecentByIP(ctx context.Context, ip string, windowHours int) ([]*domain.VisitorSession, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, domain.ErrInvalidSession
	}
	if windowHours <= 0 {
		windowHours = 24
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	since := s.clock.Now().Add(-time.Duration(windowHours) * time.Hour)
	return s.repo.FindRecentByIP(ctx, db, tenantID, ip, since, s.cfg.RecentSessionLookupLimit)
}

func (s *Service) MarkEnteredPortal(ctx context.Context, sessionID string) (*domain.VisitorSession, error) {
	return s.markFlag(ctx, sessionID, s.repo.SetEnteredPortal)
}

func (s *Service) MarkPurchaseCompleted(ctx context.Context, sessionID string) (*domain.VisitorSession, error) {
	return s.markFlag(ctx, sessionID, s.repo.SetPurchaseCompleted)
}

func (s *Service) Get(ctx context.Context, sessionID string) (*domain.VisitorSession, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindBySessionID(ctx, db, tenantID, strings.TrimSpace(sessionID))
}

type flagSetter func(ctx context.Context, db *gorm.DB, tenantID int64, sessionID string, now time.Time) (int64, error)

func (s *Service) markFlag(ctx context.Context, sessionID string, set flagSetter) (*domain.VisitorSession, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidSession
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := set(ctx, db, tenantID, sessionID, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.repo.FindBySessionID(ctx, db, tenantID, sessionID)
}
