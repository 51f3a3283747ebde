package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetCustomer(c *gin.Context) {
	rawMSISDN := strings.TrimSpace(c.Param("msisdn"))

	resp, err := s.customerSvc.FindByMSISDN(c.Request.Context(), rawMSISDN)
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

func (s *Server) LandingPageStats(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))

	stats, err := s.customerSvc.LandingPageStats(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
