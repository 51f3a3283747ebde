package session

import (
	"github.com/newsmint/kiosk/internal/session/repository"
	"github.com/newsmint/kiosk/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
