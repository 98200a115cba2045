package reconciler

import (
	"context"

	tenantdomain "github.com/smallbiznis/payforms/internal/tenant/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciler",
	fx.Provide(ProvideConfig),
	fx.Provide(func(svc tenantdomain.Service) TenantResolver { return svc }),
	fx.Provide(New),
	fx.Invoke(NewReconciler),
)

// NewReconciler runs the sweep loop for the lifetime of the application.
func NewReconciler(lc fx.Lifecycle, cfg Config, rec *Reconciler) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go rec.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
