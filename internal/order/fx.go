package order

import (
	"github.com/smallbiznis/payforms/internal/order/repository"
	"github.com/smallbiznis/payforms/internal/order/service"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewPaymentStarter),
	fx.Provide(service.New),
	fx.Provide(
		fx.Annotate(
			NewResolver,
			fx.As(new(payabledomain.Resolver)),
			fx.ResultTags(`group:"payable_resolvers"`),
		),
	),
)
