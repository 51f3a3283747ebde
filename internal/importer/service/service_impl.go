package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/importer/domain"
	obsmetrics "github.com/newsmint/kiosk/internal/observability/metrics"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// dateFormats are tried in order for the row date column. Unparsable
// dates fall back to the current time rather than rejecting the row.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"02/01/2006",
}

type ServiceParam struct {
	fx.In

	Pools   *tenant.Registry
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Billing billingdomain.Service
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	pools   *tenant.Registry
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	billing billingdomain.Service
	clock   clock.Clock
	metrics *obsmetrics.Metrics
}

func New(p ServiceParam) domain.Service {
	return &Service{
		pools:   p.Pools,
		log:     p.Log.Named("importer.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		billing: p.Billing,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) CreateBatch(ctx context.Context, req domain.CreateBatchRequest) (*domain.ImportBatch, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	batch := &domain.ImportBatch{
		ID:         s.genID.Generate(),
		Ref:        ulid.Make().String(),
		TenantID:   tenantID,
		FileName:   strings.TrimSpace(req.FileName),
		FileSize:   req.FileSize,
		Uploader:   strings.TrimSpace(req.Uploader),
		SourceType: strings.TrimSpace(req.SourceType),
		Status:     domain.StatusProcessing,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.ColumnMapping != nil {
		mapping := make(datatypes.JSONMap, len(req.ColumnMapping))
		for field, column := range req.ColumnMapping {
			mapping[field] = column
		}
		batch.ColumnMapping = mapping
	}

	if err := s.repo.InsertBatch(ctx, db, batch); err != nil {
		return nil, err
	}
	s.log.Info("import batch created",
		zap.String("ref", batch.Ref),
		zap.String("file_name", batch.FileName),
	)
	return batch, nil
}

func (s *Service) ProcessRow(ctx context.Context, ref string, rowNumber int, row domain.Row) (domain.Outcome, error) {
	batch, err := s.findBatch(ctx, ref)
	if err != nil {
		return "", err
	}
	if batch.Status.Terminal() {
		return "", domain.ErrBatchFinalized
	}
	return s.processRow(ctx, batch, rowNumber, row)
}

func (s *Service) processRow(ctx context.Context, batch *domain.ImportBatch, rowNumber int, row domain.Row) (domain.Outcome, error) {
	db, err := s.pools.DB(ctx)
	if err != nil {
		return "", err
	}

	rawMSISDN := s.cell(batch, row, domain.FieldMSISDN)
	transactionID := s.cell(batch, row, domain.FieldTransactionID)
	amountRaw := s.cell(batch, row, domain.FieldAmount)

	switch {
	case rawMSISDN == "":
		return s.reject(ctx, db, batch, rowNumber, row, domain.FieldMSISDN, "missing identifier")
	case transactionID == "":
		return s.reject(ctx, db, batch, rowNumber, row, domain.FieldTransactionID, "missing transaction id")
	case amountRaw == "":
		return s.reject(ctx, db, batch, rowNumber, row, domain.FieldAmount, "missing amount")
	}

	amount, err := parseAmount(amountRaw)
	if err != nil {
		return s.reject(ctx, db, batch, rowNumber, row, domain.FieldAmount, "unparsable amount: "+amountRaw)
	}

	status := parseStatus(s.cell(batch, row, domain.FieldStatus))
	eventAt := s.parseDate(s.cell(batch, row, domain.FieldDate))

	res, err := s.billing.Record(ctx, billingdomain.RecordRequest{
		EventID:       s.cell(batch, row, domain.FieldEventID),
		RawMSISDN:     rawMSISDN,
		Source:        billingdomain.SourceImport,
		Status:        status,
		Amount:        amount,
		ProductCode:   s.cell(batch, row, domain.FieldProductCode),
		ContentItemID: s.cell(batch, row, domain.FieldContentItem),
		TransactionID: &transactionID,
		ImportBatchID: &batch.ID,
		EventAt:       eventAt,
		RawPayload:    rowPayload(row),
	})
	if err != nil {
		if isRowError(err) {
			return s.reject(ctx, db, batch, rowNumber, row, "", err.Error())
		}
		// A store failure on one row rejects that row and lets the
		// rest of the batch proceed. Only an unreadable input fails
		// the batch as a whole.
		s.log.Warn("row rejected on storage failure",
			zap.String("ref", batch.Ref),
			zap.Int("row", rowNumber),
			zap.Error(err),
		)
		return s.reject(ctx, db, batch, rowNumber, row, "", "storage failure: "+err.Error())
	}

	outcome := domain.OutcomeAccepted
	if !res.Created {
		outcome = domain.OutcomeDuplicate
	}
	if err := s.repo.IncrementCounters(ctx, db, batch.ID, outcome, s.clock.Now()); err != nil {
		return "", err
	}
	s.metrics.RecordImportRow(ctx, string(outcome))
	return outcome, nil
}

func (s *Service) ProcessRows(ctx context.Context, ref string, rows []domain.Row) (*domain.ImportBatch, error) {
	batch, err := s.findBatch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, domain.ErrBatchFinalized
	}

	for i, row := range rows {
		if _, err := s.processRow(ctx, batch, i+1, row); err != nil {
			// Only batch bookkeeping failures reach this point; bad
			// rows and per-row storage failures were absorbed as
			// rejections above.
			db, dbErr := s.pools.DB(ctx)
			if dbErr == nil {
				_, _ = s.repo.Finalize(ctx, db, batch.ID, domain.StatusFailed, s.clock.Now())
			}
			s.log.Error("import batch failed",
				zap.String("ref", batch.Ref),
				zap.Int("row", i+1),
				zap.Error(err),
			)
			return nil, err
		}
	}
	return s.findBatch(ctx, ref)
}

func (s *Service) FinalizeBatch(ctx context.Context, ref string) (*domain.ImportBatch, error) {
	return s.finalize(ctx, ref, domain.StatusCompleted)
}

func (s *Service) CancelBatch(ctx context.Context, ref string) (*domain.ImportBatch, error) {
	return s.finalize(ctx, ref, domain.StatusCancelled)
}

func (s *Service) finalize(ctx context.Context, ref string, status domain.Status) (*domain.ImportBatch, error) {
	batch, err := s.findBatch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return batch, nil
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Finalize(ctx, db, batch.ID, status, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.findBatch(ctx, ref)
}

func (s *Service) GetBatch(ctx context.Context, ref string) (*domain.BatchDetail, error) {
	batch, err := s.findBatch(ctx, ref)
	if err != nil {
		return nil, err
	}

	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	rowErrors, err := s.repo.ListErrors(ctx, db, batch.ID, 100)
	if err != nil {
		return nil, err
	}
	return &domain.BatchDetail{ImportBatch: batch, Errors: rowErrors}, nil
}

func (s *Service) findBatch(ctx context.Context, ref string) (*domain.ImportBatch, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	db, err := s.pools.DB(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.FindByRef(ctx, db, tenantID, strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	return batch, nil
}

func (s *Service) reject(ctx context.Context, db *gorm.DB, batch *domain.ImportBatch, rowNumber int, row domain.Row, field, message string) (domain.Outcome, error) {
	err := s.repo.InsertError(ctx, db, &domain.ImportError{
		ID:        s.genID.Generate(),
		BatchID:   batch.ID,
		RowNumber: rowNumber,
		Field:     field,
		Message:   message,
		RawRow:    rowPayload(row),
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return "", err
	}
	if err := s.repo.IncrementCounters(ctx, db, batch.ID, domain.OutcomeRejected, s.clock.Now()); err != nil {
		return "", err
	}
	s.metrics.RecordImportRow(ctx, string(domain.OutcomeRejected))
	return domain.OutcomeRejected, nil
}

// cell resolves a canonical field through the batch's column mapping,
// defaulting to the field name itself.
func (s *Service) cell(batch *domain.ImportBatch, row domain.Row, field string) string {
	column := field
	if batch.ColumnMapping != nil {
		if mapped, ok := batch.ColumnMapping[field].(string); ok && mapped != "" {
			column = mapped
		}
	}
	return strings.TrimSpace(row[column])
}

func (s *Service) parseDate(raw string) time.Time {
	if raw != "" {
		for _, format := range dateFormats {
			if t, err := time.Parse(format, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return s.clock.Now()
}

// parseAmount converts a source amount string to minor units. Comma
// decimals are accepted. Values below 100 are treated as major units
// (euros) and scaled; larger values are assumed to already be cents.
func parseAmount(raw string) (int64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, errors.New("non_positive_amount")
	}
	if value < 100 {
		return int64(math.Round(value * 100)), nil
	}
	return int64(math.Round(value)), nil
}

// parseStatus maps free-form source status text onto the canonical
// enum by case-insensitive substring. Unknown text means billed.
func parseStatus(raw string) billingdomain.Status {
	lowered := strings.ToLower(raw)
	switch {
	case strings.Contains(lowered, "refund"):
		return billingdomain.StatusRefunded
	case strings.Contains(lowered, "charge"):
		return billingdomain.StatusChargeback
	case strings.Contains(lowered, "fail"):
		return billingdomain.StatusFailed
	case strings.Contains(lowered, "pend"):
		return billingdomain.StatusPending
	case strings.Contains(lowered, "cancel"):
		return billingdomain.StatusCancelled
	default:
		return billingdomain.StatusBilled
	}
}

func isRowError(err error) bool {
	return errors.Is(err, billingdomain.ErrInvalidIdentifier) ||
		errors.Is(err, billingdomain.ErrInvalidAmount) ||
		errors.Is(err, billingdomain.ErrInvalidSource) ||
		errors.Is(err, billingdomain.ErrInvalidStatus)
}

func rowPayload(row domain.Row) map[string]any {
	if row == nil {
		return nil
	}
	payload := make(map[string]any, len(row))
	for k, v := range row {
		payload[k] = v
	}
	return payload
}
