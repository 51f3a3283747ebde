package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/newsmint/kiosk/pkg/db/pagination"
)

// RecordRequest is one monetary event from any source. MSISDN may be
// pre-normalized (bulk import) or left empty to be derived from RawMSISDN.
type RecordRequest struct {
	EventID   string `json:"event_id"`
	RawMSISDN string `json:"raw_msisdn"`
	MSISDN    string `json:"msisdn"`

	Source   Source `json:"source"`
	Status   Status `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	ProductCode   string  `json:"product_code"`
	ContentItemID string  `json:"content_item_id"`
	TransactionID *string `json:"transaction_id"`

	SessionID     *string        `json:"session_id"`
	ImportBatchID *snowflake.ID  `json:"import_batch_id"`
	EventAt       time.Time      `json:"event_at"`
	RawPayload    map[string]any `json:"raw_payload"`
}

// RecordResult carries the stored event plus whether this call created it.
// Created is false when the request deduplicated against an existing row.
type RecordResult struct {
	Event   *BillingEvent `json:"event"`
	Created bool          `json:"created"`
}

type SearchRequest struct {
	MSISDN        string `json:"msisdn"`
	Source        string `json:"source"`
	Status        string `json:"status"`
	ImportBatchID int64  `json:"import_batch_id"`
	From          *time.Time
	To            *time.Time
	PageToken     string `json:"page_token"`
	PageSize      int    `json:"page_size"`
}

type SearchResponse struct {
	pagination.PageInfo
	Events []*BillingEvent `json:"events"`
	Total  int64           `json:"total"`
}

type Service interface {
	// Record stores a billing event idempotently: replaying the same
	// logical event (same content hash or external transaction id)
	// returns the already stored row instead of inserting a second one.
	Record(ctx context.Context, req RecordRequest) (RecordResult, error)

	// UpdateStatus transitions an event; returns nil when unknown.
	// Transition legality is not enforced here.
	UpdateStatus(ctx context.Context, eventID string, status Status) (*BillingEvent, error)

	Search(ctx context.Context, req SearchRequest) (SearchResponse, error)
	Stats(ctx context.Context, from, to *time.Time) (*Stats, error)
	GetByEventID(ctx context.Context, eventID string) (*BillingEvent, error)

	// UnsettledSince lists completed events awaiting settlement.
	UnsettledSince(ctx context.Context, since time.Time, limit int) ([]*BillingEvent, error)

	// MarkSettled claims an event for the settlement pipeline; false
	// when it was already claimed.
	MarkSettled(ctx context.Context, eventID string) (bool, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidIdentifier = errors.New("invalid_identifier")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidSource     = errors.New("invalid_source")
	ErrInvalidStatus     = errors.New("invalid_status")
)

// ValidSources and ValidStatuses gate parsed external input.
var ValidSources = map[Source]bool{
	SourceDimoco:       true,
	SourceImport:       true,
	SourceSMS:          true,
	SourceSubscription: true,
	SourceOther:        true,
}

var ValidStatuses = map[Status]bool{
	StatusPending:    true,
	StatusBilled:     true,
	StatusCompleted:  true,
	StatusRefunded:   true,
	StatusChargeback: true,
	StatusFailed:     true,
	StatusCancelled:  true,
}
