package reference

import "go.uber.org/fx"

var Module = fx.Module("reference",
	fx.Provide(NewRepository),
	fx.Provide(NewCatalog),
)
