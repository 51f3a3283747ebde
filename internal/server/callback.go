package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"go.uber.org/zap"
)

// dimocoCallbackRequest accepts both the form-encoded payload the
// carrier posts and a JSON mirror used by integration tooling.
type dimocoCallbackRequest struct {
	MSISDN        string `form:"msisdn" json:"msisdn"`
	Amount        int64  `form:"amount" json:"amount"`
	Currency      string `form:"currency" json:"currency"`
	TransactionID string `form:"transaction_id" json:"transaction_id"`
	ProductCode   string `form:"product_code" json:"product_code"`
	ContentItemID string `form:"content_item_id" json:"content_item_id"`
	SessionID     string `form:"session_id" json:"session_id"`
	Status        string `form:"status" json:"status"`
	Timestamp     string `form:"timestamp" json:"timestamp"`
}

func (s *Server) DimocoCallback(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID, _ := tenantctx.TenantID(ctx)
	res, err := s.callbackLimiter.Allow(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !res.Allowed {
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
		}
		AbortWithError(c, ErrRateLimited)
		return
	}

	var req dimocoCallbackRequest
	if err := c.ShouldBind(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	eventAt, err := parseOptionalTime(req.Timestamp, false)
	if err != nil {
		AbortWithError(c, newValidationError("timestamp", "invalid_timestamp", "invalid timestamp"))
		return
	}

	record := billingdomain.RecordRequest{
		RawMSISDN:     strings.TrimSpace(req.MSISDN),
		Source:        billingdomain.SourceDimoco,
		Status:        billingdomain.Status(strings.TrimSpace(req.Status)),
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
		ProductCode:   strings.TrimSpace(req.ProductCode),
		ContentItemID: strings.TrimSpace(req.ContentItemID),
		RawPayload: map[string]any{
			"msisdn":         req.MSISDN,
			"amount":         req.Amount,
			"currency":       req.Currency,
			"transaction_id": req.TransactionID,
			"product_code":   req.ProductCode,
			"status":         req.Status,
			"timestamp":      req.Timestamp,
		},
	}
	// The carrier only calls back on settled charges; an absent status
	// means completed.
	if record.Status == "" {
		record.Status = billingdomain.StatusCompleted
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

	resp, err := s.billingSvc.Record(ctx, record)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !resp.Created {
		s.log.Info("duplicate carrier callback",
			zap.String("event_id", resp.Event.EventID),
			zap.Int64("tenant_id", tenantID),
		)
	}

	if err := s.applySettlement(c, resp.Event); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"event_id": resp.Event.EventID,
		"status":   resp.Event.Status,
		"created":  resp.Created,
	}})
}
