package unlock

import (
	"github.com/newsmint/kiosk/internal/unlock/repository"
	"github.com/newsmint/kiosk/internal/unlock/service"
	"go.uber.org/fx"
)

var Module = fx.Module("unlock",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
