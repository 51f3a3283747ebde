package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/newsmint/kiosk/internal/cache"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/msisdn"
	obsmetrics "github.com/newsmint/kiosk/internal/observability/metrics"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/internal/unlock/domain"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// accessCacheTTL bounds how stale a paywall check may be. Revocations
// invalidate eagerly, so the TTL only covers cross-instance drift.
const accessCacheTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	Pools      *tenant.Registry
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Normalizer msisdn.Normalizer
	Clock      clock.Clock
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	pools      *tenant.Registry
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	normalizer msisdn.Normalizer
	clock      clock.Clock
	metrics    *obsmetrics.Metrics
	access     *cache.TTL[string, bool]
}

func New(p ServiceParam) domain.Service {
	return &Service{
		pools:      p.Pools,
		log:        p.Log.Named("unlock.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		normalizer: p.Normalizer,
		clock:      p.Clock,
		metrics:    p.Metrics,
		access:     cache.NewTTL[string, bool](accessCacheTTL, p.Clock),
	}
}

func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) (domain.GrantResult, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.GrantResult{}, domain.ErrInvalidTenant
	}
	normalized := s.normalizer.Normalize(req.RawMSISDN)
	if normalized == "" {
		return domain.GrantResult{}, domain.ErrInvalidIdentifier
	}
	contentItemID := strings.TrimSpace(req.ContentItemID)
	if contentItemID == "" {
		return domain.GrantResult{}, domain.ErrInvalidContentItem
	}

	source := req.Source
	if source == "" {
		source = domain.SourceProcessor
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return domain.GrantResult{}, err
	}

	now := s.clock.Now()
	transactionID := strings.TrimSpace(req.TransactionID)
	grant := &domain.UnlockGrant{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		MSISDN:        normalized,
		ContentItemID: contentItemID,
		TransactionID: transactionID,
		EventID:       strings.TrimSpace(req.EventID),
		Amount:        req.Amount,
		Currency:      currency,
		Status:        domain.StatusCompleted,
		Source:        source,
		GrantedAt:     now,
		ExpiresAt:     req.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Metadata != nil {
		grant.Metadata = datatypes.JSONMap(req.Metadata)
	}

	created, err := s.repo.Insert(ctx, db, grant)
	if err != nil {
		return domain.GrantResult{}, err
	}
	if !created {
		existing, err := s.repo.FindByKey(ctx, db, tenantID, normalized, contentItemID, transactionID)
		if err != nil {
			return domain.GrantResult{}, err
		}
		if existing == nil {
			return domain.GrantResult{}, gorm.ErrRecordNotFound
		}
		s.log.Debug("grant already present",
			zap.String("msisdn", normalized),
			zap.String("content_item_id", contentItemID),
			zap.String("transaction_id", transactionID),
		)
		return domain.GrantResult{Grant: existing, Created: false}, nil
	}

	s.access.Set(accessKey(tenantID, normalized, contentItemID), true)
	return domain.GrantResult{Grant: grant, Created: true}, nil
}

func (s *Service) HasAccess(ctx context.Context, rawMSISDN, contentItemID string) (bool, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return false, domain.ErrInvalidTenant
	}
	normalized := s.normalizer.Normalize(rawMSISDN)
	if normalized == "" {
		return false, domain.ErrInvalidIdentifier
	}
	contentItemID = strings.TrimSpace(contentItemID)
	if contentItemID == "" {
		return false, domain.ErrInvalidContentItem
	}

	key := accessKey(tenantID, normalized, contentItemID)
	if granted, ok := s.access.Get(key); ok {
		s.metrics.RecordUnlockCheck(ctx, granted)
		return granted, nil
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return false, err
	}
	granted, err := s.repo.HasCompletedGrant(ctx, db, tenantID, normalized, contentItemID, s.clock.Now())
	if err != nil {
		return false, err
	}

	s.access.Set(key, granted)
	s.metrics.RecordUnlockCheck(ctx, granted)
	return granted, nil
}

func (s *Service) Revoke(ctx context.Context, transactionID string, status domain.Status) ([]*domain.UnlockGrant, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if !domain.ValidStatuses[status] {
		return nil, domain.ErrInvalidStatus
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, domain.ErrInvalidTransaction
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	grants, err := s.repo.UpdateStatusByTransactionID(ctx, db, tenantID, transactionID, status, s.clock.Now())
	if err != nil {
		return nil, err
	}
	for _, grant := range grants {
		s.access.Delete(accessKey(tenantID, grant.MSISDN, grant.ContentItemID))
	}
	if len(grants) > 0 {
		s.log.Info("grants updated on reversal",
			zap.String("transaction_id", transactionID),
			zap.String("status", string(status)),
			zap.Int("grants", len(grants)),
		)
	}
	return grants, nil
}

func (s *Service) ListByMSISDN(ctx context.Context, rawMSISDN string, limit int) ([]*domain.UnlockGrant, error) {
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
	return s.repo.FindByMSISDN(ctx, db, tenantID, normalized, limit)
}

func accessKey(tenantID int64, msisdn, contentItemID string) string {
	return fmt.Sprintf("%d:%s:%s", tenantID, msisdn, contentItemID)
}
