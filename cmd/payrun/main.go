package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/bankprofile"
	"github.com/smallbiznis/payrun/internal/channel"
	"github.com/smallbiznis/payrun/internal/clock"
	"github.com/smallbiznis/payrun/internal/config"
	"github.com/smallbiznis/payrun/internal/dispatch"
	"github.com/smallbiznis/payrun/internal/inbound"
	"github.com/smallbiznis/payrun/internal/joblog"
	"github.com/smallbiznis/payrun/internal/logger"
	"github.com/smallbiznis/payrun/internal/migration"
	"github.com/smallbiznis/payrun/internal/observability"
	"github.com/smallbiznis/payrun/internal/paymentrun"
	"github.com/smallbiznis/payrun/internal/reasoncode"
	"github.com/smallbiznis/payrun/internal/reconcile"
	"github.com/smallbiznis/payrun/internal/scheduler"
	"github.com/smallbiznis/payrun/internal/server"
	"github.com/smallbiznis/payrun/pkg/db"
	"go.uber.org/fx"
)

// The monolith runs the API and the background workers in one process.
// apps/api and apps/scheduler split the two for deployments that need it.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		joblog.Module,
		bankprofile.Module,
		reasoncode.Module,
		paymentrun.Module,
		channel.Module,
		dispatch.Module,
		inbound.Module,
		reconcile.Module,

		scheduler.Module,
		server.Module,
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
