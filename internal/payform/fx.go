package payform

import (
	"github.com/smallbiznis/payforms/internal/payform/base"
	"github.com/smallbiznis/payforms/internal/payform/cash"
	"github.com/smallbiznis/payforms/internal/payform/enzona"
	"github.com/smallbiznis/payforms/internal/payform/registry"
	"github.com/smallbiznis/payforms/internal/payform/repository"
	"github.com/smallbiznis/payforms/internal/payform/service"
	"github.com/smallbiznis/payforms/internal/payform/transfermovil"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payform",
	fx.Provide(repository.Provide),
	fx.Provide(base.NewDeps),
	fx.Provide(NewRegistry),
	fx.Provide(service.New),
)

// NewRegistry registers the built-in payform variants.
func NewRegistry(deps base.Deps, log *zap.Logger) (*registry.Registry, error) {
	r := registry.New(log)
	if err := r.Register(cash.ID, cash.Factory(deps)); err != nil {
		return nil, err
	}
	if err := r.Register(enzona.ID, enzona.Factory(deps)); err != nil {
		return nil, err
	}
	if err := r.Register(transfermovil.ID, transfermovil.Factory(deps)); err != nil {
		return nil, err
	}
	return r, nil
}
