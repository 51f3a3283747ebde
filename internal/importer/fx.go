package importer

import (
	"github.com/newsmint/kiosk/internal/importer/repository"
	"github.com/newsmint/kiosk/internal/importer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("importer",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
