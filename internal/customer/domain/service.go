package domain

import (
	"context"
	"errors"
)

// IdentifyInput is a sighting of an identifier with visit context.
type IdentifyInput struct {
	RawMSISDN   string `json:"raw_msisdn"`
	LandingPage string `json:"landing_page"`
	SessionID   string `json:"session_id"`
	Campaign    string `json:"campaign"`
	Source      string `json:"source"`
	Carrier     string `json:"carrier"`
	Country     string `json:"country"`
}

type Service interface {
	// UpsertIdentified records a sighting of an identifier: creates
	// the row at status identified, or increments counters without
	// ever regressing status or overwriting set attribution.
	UpsertIdentified(ctx context.Context, input IdentifyInput) (*Customer, error)

	// ConvertToCustomer applies one completed purchase. Callers must
	// have deduplicated at the billing event layer; this ledger does
	// not re-check event identity.
	ConvertToCustomer(ctx context.Context, rawMSISDN string, amount int64) (*Customer, error)

	// RecordVisit bumps activity counters without conversion
	// implications; creates the row at status visitor when absent.
	RecordVisit(ctx context.Context, input IdentifyInput) (*Customer, error)

	// FindByMSISDN returns nil when the identifier is unknown.
	FindByMSISDN(ctx context.Context, rawMSISDN string) (*Customer, error)

	LandingPageStats(ctx context.Context, slug string) (*LandingPageStats, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidIdentifier = errors.New("invalid_identifier")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidSlug       = errors.New("invalid_slug")
)
