package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	obslogger "github.com/smallbiznis/payforms/internal/observability/logger"
	"github.com/smallbiznis/payforms/internal/order/domain"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/pkg/db"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Settings *config.PayformsSettingsHolder `optional:"true"`
	Payments domain.PaymentStarter          `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	settings *config.PayformsSettingsHolder
	payments domain.PaymentStarter
}

func New(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		settings: p.Settings,
		payments: p.Payments,
	}
}

// Create stores a pending order and, when a payform is named, opens its payment.
// A payment failure leaves the order pending and is returned alongside it.
func (s *service) Create(ctx context.Context, tenant tenantctx.Tenant, req domain.CreateOrderRequest) (*domain.CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = tenant.BaseCurrency
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}
	if req.ShippingCost < 0 {
		return nil, domain.ErrInvalidItems
	}

	var subtotal int64
	items := make(datatypes.JSONSlice[payabledomain.Item], 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.Price < 0 || strings.TrimSpace(item.Name) == "" {
			return nil, domain.ErrInvalidItems
		}
		subtotal += item.Price * item.Quantity
		items = append(items, item)
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = "ORD-" + ulid.Make().String()
	}
	now := s.clock.Now()
	order := &domain.Order{
		ID:           s.genID.Generate(),
		TenantID:     tenant.ID,
		Code:         code,
		Status:       domain.StatusPending,
		Currency:     currency,
		Subtotal:     subtotal,
		ShippingCost: req.ShippingCost,
		Items:        items,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("order code %q: %w", code, err)
		}
		return nil, err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("order_id", order.ID.String()),
	)
	log.Info("order.created", zap.String("code", code), zap.Int64("total", order.Total()))

	result := &domain.CreateOrderResult{Order: order}
	payformID := strings.TrimSpace(req.PayformID)
	if payformID == "" || s.payments == nil {
		return result, nil
	}
	payment, err := s.payments.StartPayment(ctx, tenant, payformID, order, req)
	if err != nil {
		log.Warn("order.payment.start_failed", zap.String("payform_id", payformID), zap.Error(err))
		return result, err
	}
	result.Payment = payment
	return result, nil
}

func (s *service) Get(ctx context.Context, tenant tenantctx.Tenant, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, tenant.ID, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, tenant tenantctx.Tenant, id snowflake.ID, status string) (*domain.Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return nil, domain.ErrInvalidStatus
	}
	if _, err := s.Get(ctx, tenant, id); err != nil {
		return nil, err
	}
	changed, err := s.repo.UpdateStatus(ctx, s.db, tenant.ID, id, status, s.settings.Get().TerminalPayableStatuses, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrTerminal
	}
	obslogger.WithContext(ctx, s.log).Info("order.status.changed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("order_id", id.String()),
		zap.String("status", status),
	)
	return s.Get(ctx, tenant, id)
}
