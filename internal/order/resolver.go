package order

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	"github.com/smallbiznis/payforms/internal/order/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Clock    clock.Clock
	Settings *config.PayformsSettingsHolder `optional:"true"`
}

// Resolver exposes orders as payables under the "order" type tag.
type Resolver struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	clock    clock.Clock
	settings *config.PayformsSettingsHolder
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		db:       p.DB,
		log:      p.Log.Named("order.payable"),
		repo:     p.Repo,
		clock:    p.Clock,
		settings: p.Settings,
	}
}

func (r *Resolver) Types() []string { return []string{domain.PayableType} }

func (r *Resolver) Resolve(ctx context.Context, tenant tenantctx.Tenant, ref payabledomain.Ref) (payabledomain.Payable, error) {
	if !strings.EqualFold(ref.Type, domain.PayableType) {
		return nil, payabledomain.ErrUnsupported
	}
	id, err := snowflake.ParseString(strings.TrimSpace(ref.ID))
	if err != nil {
		return nil, payabledomain.ErrNotFound
	}
	order, err := r.repo.FindByID(ctx, r.db, tenant.ID, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, payabledomain.ErrNotFound
	}
	return &payable{resolver: r, order: order}, nil
}

type payable struct {
	resolver *Resolver
	order    *domain.Order
}

var _ payabledomain.Orderable = (*payable)(nil)

func (p *payable) Ref() payabledomain.Ref { return p.order.Ref() }

func (p *payable) Status() string { return p.order.Status }

func (p *payable) Code() string { return p.order.Code }

func (p *payable) ShippingCost() int64 { return p.order.ShippingCost }

func (p *payable) Items() []payabledomain.Item { return append([]payabledomain.Item{}, p.order.Items...) }

func (p *payable) OnPaymentSuccess(ctx context.Context, status string) error {
	return p.transition(ctx, strings.ToLower(strings.TrimSpace(status)))
}

func (p *payable) OnPaymentFailed(ctx context.Context) error {
	return p.transition(ctx, domain.StatusPaymentFailed)
}

func (p *payable) OnPaymentExpired(ctx context.Context) error {
	return p.transition(ctx, domain.StatusPaymentExpired)
}

// transition is a no-op once the order has reached a terminal status.
func (p *payable) transition(ctx context.Context, status string) error {
	r := p.resolver
	if status == "" {
		return domain.ErrInvalidStatus
	}
	now := r.clock.Now()
	changed, err := r.repo.UpdateStatus(ctx, r.db, p.order.TenantID, p.order.ID, status, r.settings.Get().TerminalPayableStatuses, now)
	if err != nil {
		return err
	}
	if !changed {
		r.log.Info("order.payable.transition_skipped",
			zap.String("order_id", p.order.ID.String()),
			zap.String("status", status),
		)
		return nil
	}
	p.order.Status = status
	p.order.UpdatedAt = now
	return nil
}
