package tenant

import (
	"github.com/smallbiznis/payforms/internal/seed"
	"github.com/smallbiznis/payforms/internal/tenant/domain"
	"github.com/smallbiznis/payforms/internal/tenant/repository"
	"github.com/smallbiznis/payforms/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(payformInitializer),
	fx.Provide(service.New),
)

func payformInitializer(i *seed.Initializer) domain.PayformInitializer { return i }
