package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/cache"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	"github.com/smallbiznis/payforms/internal/feature"
	"github.com/smallbiznis/payforms/internal/migration"
	"github.com/smallbiznis/payforms/internal/observability"
	"github.com/smallbiznis/payforms/internal/order"
	"github.com/smallbiznis/payforms/internal/payable"
	"github.com/smallbiznis/payforms/internal/payform"
	"github.com/smallbiznis/payforms/internal/ratelimit"
	"github.com/smallbiznis/payforms/internal/reconciler"
	"github.com/smallbiznis/payforms/internal/reference"
	"github.com/smallbiznis/payforms/internal/seed"
	"github.com/smallbiznis/payforms/internal/server"
	"github.com/smallbiznis/payforms/internal/tenant"
	"github.com/smallbiznis/payforms/internal/transaction"
	"github.com/smallbiznis/payforms/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		cache.Module,
		clock.Module,
		ratelimit.Module,

		reference.Module,
		feature.Module,
		payable.Module,
		transaction.Module,
		payform.Module,
		seed.Module,
		tenant.Module,
		order.Module,

		// Expiry sweeps run in-process unless RECONCILER_ENABLED=false.
		reconciler.Module,
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
