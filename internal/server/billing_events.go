package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/pkg/db/pagination"
)

type createBillingEventRequest struct {
	RawMSISDN     string         `json:"raw_msisdn"`
	MSISDN        string         `json:"msisdn"`
	Source        string         `json:"source"`
	Status        string         `json:"status"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	ProductCode   string         `json:"product_code"`
	ContentItemID string         `json:"content_item_id"`
	TransactionID string         `json:"transaction_id"`
	SessionID     string         `json:"session_id"`
	EventAt       string         `json:"event_at"`
	RawPayload    map[string]any `json:"raw_payload"`
}

func (s *Server) CreateBillingEvent(c *gin.Context) {
	var req createBillingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	eventAt, err := parseOptionalTime(req.EventAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("event_at", "invalid_event_at", "invalid event_at"))
		return
	}

	record := billingdomain.RecordRequest{
		RawMSISDN:     strings.TrimSpace(req.RawMSISDN),
		MSISDN:        strings.TrimSpace(req.MSISDN),
		Source:        billingdomain.Source(strings.TrimSpace(req.Source)),
		Status:        billingdomain.Status(strings.TrimSpace(req.Status)),
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
		ProductCode:   strings.TrimSpace(req.ProductCode),
		ContentItemID: strings.TrimSpace(req.ContentItemID),
		RawPayload:    req.RawPayload,
	}
	if record.Source == "" {
		record.Source = billingdomain.SourceOther
	}
	if txn := strings.TrimSpace(req.TransactionID); txn != "" {
		record.TransactionID = &txn
	}
	if sid := strings.TrimSpace(req.SessionID); sid != "" {
		record.SessionID = &sid
	}
	if eventAt != nil {
		record.EventAt = *eventAt
	}

	resp, err := s.billingSvc.Record(c.Request.Context(), record)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.applySettlement(c, resp.Event); err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

type updateBillingEventStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateBillingEventStatus(c *gin.Context) {
	eventID := strings.TrimSpace(c.Param("event_id"))

	var req updateBillingEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.billingSvc.UpdateStatus(c.Request.Context(), eventID, billingdomain.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if event == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	if err := s.applySettlement(c, event); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": event})
}

// applySettlement runs the post-transition side effects. Both branches
// are idempotent, so the caller may safely retry on failure.
func (s *Server) applySettlement(c *gin.Context, event *billingdomain.BillingEvent) error {
	switch event.Status {
	case billingdomain.StatusCompleted:
		return s.settlement.OnCompleted(c.Request.Context(), event)
	case billingdomain.StatusRefunded, billingdomain.StatusChargeback:
		return s.settlement.OnReversed(c.Request.Context(), event)
	default:
		return nil
	}
}

func (s *Server) GetBillingEvent(c *gin.Context) {
	eventID := strings.TrimSpace(c.Param("event_id"))

	event, err := s.billingSvc.GetByEventID(c.Request.Context(), eventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if event == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": event})
}

func (s *Server) ListBillingEvents(c *gin.Context) {
	var query struct {
		pagination.Pagination
		MSISDN        string `form:"msisdn"`
		Source        string `form:"source"`
		Status        string `form:"status"`
		ImportBatchID string `form:"import_batch_id"`
		From          string `form:"from"`
		To            string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	batchID, err := parseOptionalInt64(query.ImportBatchID)
	if err != nil {
		AbortWithError(c, newValidationError("import_batch_id", "invalid_import_batch_id", "invalid import_batch_id"))
		return
	}

	req := billingdomain.SearchRequest{
		MSISDN:    strings.TrimSpace(query.MSISDN),
		Source:    strings.TrimSpace(query.Source),
		Status:    strings.TrimSpace(query.Status),
		From:      from,
		To:        to,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	}
	if batchID != nil {
		req.ImportBatchID = *batchID
	}

	resp, err := s.billingSvc.Search(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BillingEventStats(c *gin.Context) {
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	stats, err := s.billingSvc.Stats(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
