package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/msisdn"
	obsmetrics "github.com/newsmint/kiosk/internal/observability/metrics"
	"github.com/newsmint/kiosk/internal/tenant"
	pkgdb "github.com/newsmint/kiosk/pkg/db"
	"github.com/newsmint/kiosk/pkg/db/pagination"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

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
}

func New(p ServiceParam) domain.Service {
	return &Service{
		pools:      p.Pools,
		log:        p.Log.Named("billingevent.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		normalizer: p.Normalizer,
		clock:      p.Clock,
		metrics:    p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (domain.RecordResult, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.RecordResult{}, domain.ErrInvalidTenant
	}

	// Normalize is idempotent, so pre-normalized import values pass
	// through unchanged while local dial forms canonicalize. Skipping
	// this for caller-supplied values would fork the content hash.
	normalized := s.normalizer.Normalize(req.MSISDN)
	if normalized == "" {
		normalized = s.normalizer.Normalize(req.RawMSISDN)
	}
	if normalized == "" {
		return domain.RecordResult{}, domain.ErrInvalidIdentifier
	}

	if req.Amount <= 0 {
		return domain.RecordResult{}, domain.ErrInvalidAmount
	}

	source := req.Source
	if source == "" {
		source = domain.SourceOther
	}
	if !domain.ValidSources[source] {
		return domain.RecordResult{}, domain.ErrInvalidSource
	}

	status := req.Status
	if status == "" {
		status = domain.StatusBilled
	}
	if !domain.ValidStatuses[status] {
		return domain.RecordResult{}, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	eventAt := req.EventAt
	if eventAt.IsZero() {
		eventAt = now
	}

	// Bulk import rows may carry their own dedup key; everything else
	// gets the deterministic content hash.
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		eventID = domain.EventID(normalized, eventAt, req.Amount, source, req.ProductCode)
	}

	transactionID := normalizeOptional(req.TransactionID)

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	event := &domain.BillingEvent{
		ID:            s.genID.Generate(),
		EventID:       eventID,
		TenantID:      tenantID,
		RawMSISDN:     strings.TrimSpace(req.RawMSISDN),
		MSISDN:        normalized,
		Source:        source,
		Status:        status,
		Amount:        req.Amount,
		Currency:      currency,
		ProductCode:   strings.TrimSpace(req.ProductCode),
		ContentItemID: strings.TrimSpace(req.ContentItemID),
		TransactionID: transactionID,
		SessionID:     normalizeOptional(req.SessionID),
		ImportBatchID: req.ImportBatchID,
		EventAt:       eventAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.RawPayload != nil {
		event.RawPayload = datatypes.JSONMap(req.RawPayload)
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return domain.RecordResult{}, err
	}

	if err := s.repo.Insert(ctx, db, event); err != nil {
		if !pkgdb.IsDuplicateKeyErr(err) {
			return domain.RecordResult{}, err
		}
		// Lost the insert race or replayed the same logical event:
		// read back the winner by content hash, then by external id.
		existing, findErr := s.repo.FindByEventID(ctx, db, eventID)
		if findErr != nil {
			return domain.RecordResult{}, findErr
		}
		if existing == nil && transactionID != nil {
			existing, findErr = s.repo.FindByTransactionID(ctx, db, *transactionID)
			if findErr != nil {
				return domain.RecordResult{}, findErr
			}
		}
		if existing == nil {
			return domain.RecordResult{}, err
		}
		s.metrics.RecordBillingDuplicate(ctx, string(source))
		s.log.Debug("billing event deduplicated",
			zap.String("event_id", eventID),
			zap.String("source", string(source)),
		)
		return domain.RecordResult{Event: existing, Created: false}, nil
	}

	s.metrics.RecordBillingEvent(ctx, string(source))
	return domain.RecordResult{Event: event, Created: true}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, eventID string, status domain.Status) (*domain.BillingEvent, error) {
	if !domain.ValidStatuses[status] {
		return nil, domain.ErrInvalidStatus
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByEventID(ctx, db, eventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	// Transitions are deliberately permissive; out-of-order DIMOCO
	// batches can legitimately replay older states. Flag the odd ones.
	if existing.Status == domain.StatusRefunded && status == domain.StatusBilled {
		s.log.Warn("regressive status transition",
			zap.String("event_id", eventID),
			zap.String("from", string(existing.Status)),
			zap.String("to", string(status)),
		)
	}

	now := s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, db, eventID, status, now); err != nil {
		return nil, err
	}

	existing.Status = status
	existing.UpdatedAt = now
	return existing, nil
}

func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.SearchResponse{}, domain.ErrInvalidTenant
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	filter := domain.SearchFilter{
		TenantID:      tenantID,
		MSISDN:        s.normalizer.Normalize(req.MSISDN),
		Source:        domain.Source(strings.ToLower(strings.TrimSpace(req.Source))),
		Status:        domain.Status(strings.ToLower(strings.TrimSpace(req.Status))),
		ImportBatchID: req.ImportBatchID,
		From:          req.From,
		To:            req.To,
	}
	if req.MSISDN == "" {
		filter.MSISDN = ""
	}

	events, total, err := s.repo.Search(ctx, db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.SearchResponse{}, err
	}

	pageInfo, events := pagination.BuildCursorPageInfo(events, pageSize, func(ev *domain.BillingEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        ev.ID.String(),
			CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	return domain.SearchResponse{
		PageInfo: *pageInfo,
		Events:   events,
		Total:    total,
	}, nil
}

func (s *Service) Stats(ctx context.Context, from, to *time.Time) (*domain.Stats, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Stats(ctx, db, tenantID, from, to)
}

func (s *Service) GetByEventID(ctx context.Context, eventID string) (*domain.BillingEvent, error) {
	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByEventID(ctx, db, strings.TrimSpace(eventID))
}

func (s *Service) UnsettledSince(ctx context.Context, since time.Time, limit int) ([]*domain.BillingEvent, error) {
	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, _ := tenantctx.TenantID(ctx)
	return s.repo.ListUnsettled(ctx, db, tenantID, since, limit)
}

func (s *Service) MarkSettled(ctx context.Context, eventID string) (bool, error) {
	db, err := s.pools.DB(ctx)
	if err != nil {
		return false, err
	}
	affected, err := s.repo.MarkSettled(ctx, db, eventID, s.clock.Now())
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
