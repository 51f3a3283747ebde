package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	"github.com/newsmint/kiosk/internal/migration"
	"github.com/newsmint/kiosk/internal/observability"
	"github.com/newsmint/kiosk/internal/reconciler"
	"github.com/newsmint/kiosk/internal/server"
	"github.com/newsmint/kiosk/internal/tenant"
	"github.com/newsmint/kiosk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		tenant.Module,
		migration.Module,

		server.Module,
		reconciler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
