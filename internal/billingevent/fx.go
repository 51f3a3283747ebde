package billingevent

import (
	"github.com/newsmint/kiosk/internal/billingevent/repository"
	"github.com/newsmint/kiosk/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
