package msisdn

import (
	"github.com/newsmint/kiosk/internal/config"
	"go.uber.org/fx"
)

// Module provides the shared identifier normalizer.
var Module = fx.Module("msisdn",
	fx.Provide(func(cfg config.Config) Normalizer {
		return NewNormalizer(cfg.DefaultCountryCode)
	}),
)
