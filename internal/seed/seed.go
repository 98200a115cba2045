package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/payforms/internal/clock"
	obslogger "github.com/smallbiznis/payforms/internal/observability/logger"
	"github.com/smallbiznis/payforms/internal/payform/cash"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/registry"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Registry *registry.Registry
	Repo     domain.Repository
	Clock    clock.Clock
}

// Initializer prepares the payform definitions of a new tenant.
type Initializer struct {
	db       *gorm.DB
	log      *zap.Logger
	registry *registry.Registry
	repo     domain.Repository
	clock    clock.Clock
}

func New(p Params) *Initializer {
	return &Initializer{
		db:       p.DB,
		log:      p.Log.Named("seed"),
		registry: p.Registry,
		repo:     p.Repo,
		clock:    p.Clock,
	}
}

// EnsureTenantPayforms creates every registered definition and activates cash in the
// tenant base currency. Cash is left alone once it carries currencies.
func (i *Initializer) EnsureTenantPayforms(ctx context.Context, tenant tenantctx.Tenant) error {
	if _, err := i.registry.Instantiate(ctx, tenant); err != nil {
		return err
	}

	def, err := i.repo.Find(ctx, i.db, tenant.ID, cash.ID)
	if err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, cash.ID)
	}
	if len(def.Currencies) > 0 {
		return nil
	}
	currency := strings.ToUpper(strings.TrimSpace(tenant.BaseCurrency))
	if currency == "" {
		return nil
	}

	err = i.repo.Update(ctx, i.db, tenant.ID, cash.ID, domain.UpdateDefinition{
		Name:            def.Name,
		Description:     def.Description,
		Icon:            def.Icon,
		Active:          true,
		Currencies:      []string{currency},
		ExpirationHours: def.ExpirationHours,
		Args:            def.Args,
		UpdatedAt:       i.clock.Now(),
	})
	if err != nil {
		return err
	}
	obslogger.WithContext(ctx, i.log).Info("seed.payform.activated",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("payform_id", cash.ID),
		zap.String("currency", currency),
	)
	return nil
}
