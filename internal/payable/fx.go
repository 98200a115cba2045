package payable

import (
	"github.com/smallbiznis/payforms/internal/payable/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payable",
	fx.Provide(NewRegistry),
	fx.Provide(func(r *Registry) domain.Lookup { return r }),
)
