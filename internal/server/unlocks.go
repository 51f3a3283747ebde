package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) UnlockAccess(c *gin.Context) {
	rawMSISDN := strings.TrimSpace(c.Query("msisdn"))
	contentItemID := strings.TrimSpace(c.Query("content_item_id"))

	granted, err := s.unlockSvc.HasAccess(c.Request.Context(), rawMSISDN, contentItemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"content_item_id": contentItemID,
		"access":          granted,
	}})
}

func (s *Server) ListUnlocks(c *gin.Context) {
	rawMSISDN := strings.TrimSpace(c.Query("msisdn"))

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	grants, err := s.unlockSvc.ListByMSISDN(c.Request.Context(), rawMSISDN, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": grants})
}
