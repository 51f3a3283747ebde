package tenantctx

import "context"

type keyType string

const (
	// TenantIDKey carries the resolved tenant (brand) identifier.
	TenantIDKey keyType = "tenant_id"
)

// WithTenantID returns a context carrying the tenant identifier.
func WithTenantID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

// TenantID extracts the tenant identifier from the context.
func TenantID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(TenantIDKey).(int64)
	return id, ok
}
