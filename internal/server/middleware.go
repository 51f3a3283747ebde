package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/newsmint/kiosk/internal/config"
	"github.com/newsmint/kiosk/pkg/tenantctx"
)

const HeaderTenant = "X-Tenant-ID"

// TenantContext resolves the brand a request belongs to from the
// tenant header, falling back to the configured default. Downstream
// services read the id from the request context.
func TenantContext(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := cfg.DefaultTenantID

		if raw := strings.TrimSpace(c.GetHeader(HeaderTenant)); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				AbortWithError(c, newValidationError("tenant", "invalid_tenant", "invalid tenant header"))
				return
			}
			tenantID = parsed
		}

		if tenantID > 0 {
			ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

