package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/cache"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	"github.com/smallbiznis/payforms/internal/feature"
	"github.com/smallbiznis/payforms/internal/observability"
	"github.com/smallbiznis/payforms/internal/order"
	"github.com/smallbiznis/payforms/internal/payable"
	"github.com/smallbiznis/payforms/internal/payform"
	"github.com/smallbiznis/payforms/internal/ratelimit"
	"github.com/smallbiznis/payforms/internal/reconciler"
	"github.com/smallbiznis/payforms/internal/reference"
	"github.com/smallbiznis/payforms/internal/seed"
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
		cache.Module,
		clock.Module,
		ratelimit.Module,

		reconciler.Module,

		// Payable resolvers and tenant lookup.
		reference.Module,
		feature.Module,
		payable.Module,
		transaction.Module,
		order.Module,
		tenant.Module,

		// Transitive dependencies (tenant bootstrap seeds payforms)
		payform.Module,
		seed.Module,

		// No server module!
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
