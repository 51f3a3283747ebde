package tenant

import (
	"context"

	"go.uber.org/fx"
)

func registerHooks(lc fx.Lifecycle, registry *Registry) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return registry.Close()
		},
	})
}

// Module provides the tenant pool registry.
var Module = fx.Module("tenant",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
