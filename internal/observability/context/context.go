// Package obscontext carries request-scoped correlation values used by
// logging and tracing.
package obscontext

import (
	"context"
	"strconv"

	"github.com/newsmint/kiosk/pkg/tenantctx"
)

type requestIDKey struct{}

// WithRequestID annotates the context with the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// TenantIDFromContext returns the tenant id as a string, or "".
func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, ok := tenantctx.TenantID(ctx)
	if !ok || id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
