package customer

import (
	"github.com/newsmint/kiosk/internal/customer/repository"
	"github.com/newsmint/kiosk/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
