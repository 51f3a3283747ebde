package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	sessiondomain "github.com/newsmint/kiosk/internal/session/domain"
	unlockdomain "github.com/newsmint/kiosk/internal/unlock/domain"
	"github.com/newsmint/kiosk/pkg/tenantctx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessionService struct {
	sessiondomain.Service

	tracked  []sessiondomain.TrackRequest
	trackErr error
}

func (f *fakeSessionService) Track(ctx context.Context, req sessiondomain.TrackRequest) (*sessiondomain.VisitorSession, error) {
	f.tracked = append(f.tracked, req)
	if f.trackErr != nil {
		return nil, f.trackErr
	}
	tenantID, _ := tenantctx.TenantID(ctx)
	return &sessiondomain.VisitorSession{
		TenantID:  tenantID,
		SessionID: req.SessionID,
		PageViews: int64(len(f.tracked)),
	}, nil
}

type fakeBillingService struct {
	billingdomain.Service

	recorded []billingdomain.RecordRequest
}

func (f *fakeBillingService) Record(ctx context.Context, req billingdomain.RecordRequest) (billingdomain.RecordResult, error) {
	f.recorded = append(f.recorded, req)
	_ = ctx
	status := req.Status
	if status == "" {
		status = billingdomain.StatusBilled
	}
	txn := req.TransactionID
	return billingdomain.RecordResult{
		Event: &billingdomain.BillingEvent{
			EventID:       "evt-1",
			Status:        status,
			Source:        req.Source,
			Amount:        req.Amount,
			TransactionID: txn,
		},
		Created: len(f.recorded) == 1,
	}, nil
}

type fakeUnlockService struct {
	unlockdomain.Service

	granted map[string]bool
}

func (f *fakeUnlockService) HasAccess(ctx context.Context, rawMSISDN, contentItemID string) (bool, error) {
	_ = ctx
	if rawMSISDN == "" {
		return false, unlockdomain.ErrInvalidIdentifier
	}
	return f.granted[rawMSISDN+"|"+contentItemID], nil
}

type fakePipeline struct {
	completed []string
	reversed  []string
}

func (f *fakePipeline) OnCompleted(ctx context.Context, event *billingdomain.BillingEvent) error {
	_ = ctx
	f.completed = append(f.completed, event.EventID)
	return nil
}

func (f *fakePipeline) OnReversed(ctx context.Context, event *billingdomain.BillingEvent) error {
	_ = ctx
	f.reversed = append(f.reversed, event.EventID)
	return nil
}

func (f *fakePipeline) Replay(ctx context.Context, window time.Duration) (int64, error) {
	_ = ctx
	_ = window
	return 0, nil
}

type serverFixture struct {
	server   *Server
	engine   *gin.Engine
	sessions *fakeSessionService
	billing  *fakeBillingService
	unlocks  *fakeUnlockService
	pipeline *fakePipeline
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	sessions := &fakeSessionService{}
	billing := &fakeBillingService{}
	unlocks := &fakeUnlockService{granted: map[string]bool{}}
	pipeline := &fakePipeline{}

	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        config.Config{DefaultTenantID: 7},
		Log:        zap.NewNop(),
		Clock:      clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		SessionSvc: sessions,
		BillingSvc: billing,
		UnlockSvc:  unlocks,
		Settlement: pipeline,
	})

	return &serverFixture{
		server:   srv,
		engine:   engine,
		sessions: sessions,
		billing:  billing,
		unlocks:  unlocks,
		pipeline: pipeline,
	}
}

func (f *serverFixture) doJSON(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestTrackSessionUsesDefaultTenant(t *testing.T) {
	f := newServerFixture(t)

	rec := f.doJSON(http.MethodPost, "/api/v1/sessions/track", gin.H{
		"session_id":   "sess-1",
		"landing_page": "sport-flat",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.sessions.tracked, 1)
	require.Equal(t, "sess-1", f.sessions.tracked[0].SessionID)

	var resp struct {
		Data sessiondomain.VisitorSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(7), resp.Data.TenantID)
}

func TestTenantHeaderOverridesDefault(t *testing.T) {
	f := newServerFixture(t)

	rec := f.doJSON(http.MethodPost, "/api/v1/sessions/track", gin.H{
		"session_id": "sess-2",
	}, map[string]string{HeaderTenant: "42"})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data sessiondomain.VisitorSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(42), resp.Data.TenantID)
}

func TestInvalidTenantHeaderRejected(t *testing.T) {
	f := newServerFixture(t)

	rec := f.doJSON(http.MethodPost, "/api/v1/sessions/track", gin.H{
		"session_id": "sess-3",
	}, map[string]string{HeaderTenant: "not-a-number"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, f.sessions.tracked)
}

func TestValidationErrorsMapToBadRequest(t *testing.T) {
	f := newServerFixture(t)
	f.sessions.trackErr = sessiondomain.ErrInvalidSession

	rec := f.doJSON(http.MethodPost, "/api/v1/sessions/track", gin.H{}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_session")
}

func TestDimocoCallbackRecordsAndSettles(t *testing.T) {
	f := newServerFixture(t)

	form := url.Values{}
	form.Set("msisdn", "0170 1234567")
	form.Set("amount", "499")
	form.Set("transaction_id", "txn-9")
	form.Set("product_code", "article-42")
	form.Set("content_item_id", "article-42")

	req := httptest.NewRequest(http.MethodPost, "/callbacks/dimoco", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.billing.recorded, 1)
	require.Equal(t, billingdomain.SourceDimoco, f.billing.recorded[0].Source)
	require.Equal(t, billingdomain.StatusCompleted, f.billing.recorded[0].Status)
	require.Equal(t, []string{"evt-1"}, f.pipeline.completed)
	require.Empty(t, f.pipeline.reversed)
}

func TestCreateBillingEventSkipsSettlementUntilCompleted(t *testing.T) {
	f := newServerFixture(t)

	rec := f.doJSON(http.MethodPost, "/api/v1/billing-events", gin.H{
		"raw_msisdn": "0170 1234567",
		"amount":     199,
		"status":     "billed",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Empty(t, f.pipeline.completed)
	require.Empty(t, f.pipeline.reversed)
}

func TestUnlockAccessReportsGrant(t *testing.T) {
	f := newServerFixture(t)
	f.unlocks.granted["491701234567|article-42"] = true

	rec := f.doJSON(http.MethodGet, "/api/v1/unlocks/access?msisdn=491701234567&content_item_id=article-42", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"access":true`)

	rec = f.doJSON(http.MethodGet, "/api/v1/unlocks/access?msisdn=491701234567&content_item_id=article-43", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"access":false`)
}
