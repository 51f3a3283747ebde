package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	sessiondomain "github.com/newsmint/kiosk/internal/session/domain"
)

type trackSessionRequest struct {
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

func (s *Server) TrackSession(c *gin.Context) {
	var req trackSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		ip = c.ClientIP()
	}
	userAgent := strings.TrimSpace(req.UserAgent)
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	resp, err := s.sessionSvc.Track(c.Request.Context(), sessiondomain.TrackRequest{
		SessionID:   strings.TrimSpace(req.SessionID),
		LandingPage: strings.TrimSpace(req.LandingPage),
		Referrer:    strings.TrimSpace(req.Referrer),
		IP:          ip,
		UserAgent:   userAgent,
		UTMSource:   strings.TrimSpace(req.UTMSource),
		UTMMedium:   strings.TrimSpace(req.UTMMedium),
		UTMCampaign: strings.TrimSpace(req.UTMCampaign),
		NetworkType: strings.TrimSpace(req.NetworkType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type identifySessionRequest struct {
	RawMSISDN  string `json:"raw_msisdn"`
	Confidence string `json:"confidence"`
	Carrier    string `json:"carrier"`
	Country    string `json:"country"`
}

func (s *Server) IdentifySession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))

	var req identifySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.sessionSvc.AttachIdentifier(c.Request.Context(), sessionID, sessiondomain.IdentifyRequest{
		RawMSISDN:  strings.TrimSpace(req.RawMSISDN),
		Confidence: sessiondomain.Confidence(strings.TrimSpace(req.Confidence)),
		Carrier:    strings.TrimSpace(req.Carrier),
		Country:    strings.TrimSpace(req.Country),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkSessionPortal(c *gin.Context) {
	s.markSession(c, s.sessionSvc.MarkEnteredPortal)
}

func (s *Server) MarkSessionPurchase(c *gin.Context) {
	s.markSession(c, s.sessionSvc.MarkPurchaseCompleted)
}

func (s *Server) markSession(c *gin.Context, mark func(ctx context.Context, sessionID string) (*sessiondomain.VisitorSession, error)) {
	sessionID := strings.TrimSpace(c.Param("session_id"))

	resp, err := mark(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))

	resp, err := s.sessionSvc.Get(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecentSessions(c *gin.Context) {
	ip := strings.TrimSpace(c.Query("ip"))
	if ip == "" {
		ip = c.ClientIP()
	}

	windowHours := 0
	if raw := strings.TrimSpace(c.Query("window_hours")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("window_hours", "invalid_window_hours", "invalid window_hours"))
			return
		}
		windowHours = parsed
	}

	resp, err := s.sessionSvc.FindRecentByIP(c.Request.Context(), ip, windowHours)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
