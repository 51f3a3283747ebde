package domain

import (
	"context"
	"errors"
	"time"
)

// GrantRequest carries the billing context of a completed purchase.
// Settlement only issues grants for completed events; the ledger does
// not re-verify the event status.
type GrantRequest struct {
	RawMSISDN     string         `json:"raw_msisdn"`
	ContentItemID string         `json:"content_item_id"`
	TransactionID string         `json:"transaction_id"`
	EventID       string         `json:"event_id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Source        Source         `json:"source"`
	ExpiresAt     *time.Time     `json:"expires_at"`
	Metadata      map[string]any `json:"metadata"`
}

// GrantResult reports whether this call created the grant or found an
// earlier one for the same purchase.
type GrantResult struct {
	Grant   *UnlockGrant `json:"grant"`
	Created bool         `json:"created"`
}

type Service interface {
	// Grant records the entitlement; a replay for the same
	// (identifier, item, transaction) returns the stored grant.
	Grant(ctx context.Context, req GrantRequest) (GrantResult, error)

	// HasAccess reports whether a completed grant covers the pair.
	HasAccess(ctx context.Context, rawMSISDN, contentItemID string) (bool, error)

	// Revoke mirrors a billing reversal; access reflects it immediately.
	Revoke(ctx context.Context, transactionID string, status Status) ([]*UnlockGrant, error)

	ListByMSISDN(ctx context.Context, rawMSISDN string, limit int) ([]*UnlockGrant, error)
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidIdentifier  = errors.New("invalid_identifier")
	ErrInvalidContentItem = errors.New("invalid_content_item")
	ErrInvalidTransaction = errors.New("invalid_transaction")
	ErrInvalidStatus      = errors.New("invalid_status")
)

var ValidStatuses = map[Status]bool{
	StatusPending:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusRefunded:  true,
}
