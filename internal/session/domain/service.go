package domain

import (
	"context"
	"errors"
)

// TrackRequest carries the ambient context of one page view.
type TrackRequest struct {
	SessionID   string `json:"session_id"`
	LandingPage string `json:"landing_page"`
	Referrer    string `json:"referrer"`
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	NetworkType string `json:"network_type"`
}

// IdentifyRequest attaches a carrier identifier to a session.
type IdentifyRequest struct {
	RawMSISDN  string     `json:"raw_msisdn"`
	Confidence Confidence `json:"confidence"`
	Carrier    string     `json:"carrier"`
	Country    string     `json:"country"`
}

type Service interface {
	// Track creates the session on first sight, otherwise increments
	// its page view counter. Concurrent calls for the same id never
	// produce two rows.
	Track(ctx context.Context, req TrackRequest) (*VisitorSession, error)

	// AttachIdentifier upgrades the session identity. A lower
	// confidence never overwrites a higher one; nil when the session
	// is unknown.
	AttachIdentifier(ctx context.Context, sessionID string, req IdentifyRequest) (*VisitorSession, error)

	// FindRecentByIP lists sessions seen from the address within the
	// window, most recent first, bounded.
	FindRecentByIP(ctx context.Context, ip string, windowHours int) ([]*VisitorSession, error)

	MarkEnteredPortal(ctx context.Context, sessionID string) (*VisitorSession, error)
	MarkPurchaseCompleted(ctx context.Context, sessionID string) (*VisitorSession, error)
	Get(ctx context.Context, sessionID string) (*VisitorSession, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidSession    = errors.New("invalid_session")
	ErrInvalidIdentifier = errors.New("invalid_identifier")
	ErrInvalidConfidence = errors.New("invalid_confidence")
)

var ValidConfidences = map[Confidence]bool{
	ConfidenceNone:        true,
	ConfidenceUnconfirmed: true,
	ConfidenceConfirmed:   true,
}
