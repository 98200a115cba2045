package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/payforms/internal/clock"
	obslogger "github.com/smallbiznis/payforms/internal/observability/logger"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/registry"
	referencedomain "github.com/smallbiznis/payforms/internal/reference/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
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
	Catalog  referencedomain.Catalog `optional:"true"`
}

type UpdateRequest struct {
	Name            string         `json:"name" binding:"required,max=255"`
	Description     string         `json:"description" binding:"required,max=255"`
	Icon            string         `json:"icon"`
	Active          *bool          `json:"active" binding:"required"`
	Currencies      []string       `json:"currencies" binding:"required,dive,required,len=3"`
	ExpirationHours *int           `json:"expiration_hours" binding:"omitempty,min=0"`
	Args            map[string]any `json:"args"`
}

type CreatePaymentRequest struct {
	Amount        int64
	Currency      string
	Metadata      map[string]any
	Payable       *payabledomain.Ref
	ReturnBaseURL string
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	registry *registry.Registry
	repo     domain.Repository
	clock    clock.Clock
	catalog  referencedomain.Catalog
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payform.service"),
		registry: p.Registry,
		repo:     p.Repo,
		clock:    p.Clock,
		catalog:  p.Catalog,
	}
}

// ListActive is the public storefront listing.
func (s *Service) ListActive(ctx context.Context, tenant tenantctx.Tenant, currency string) ([]domain.Summary, error) {
	forms, err := s.registry.ListActive(ctx, tenant, strings.ToUpper(strings.TrimSpace(currency)))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Summary, 0, len(forms))
	for _, form := range forms {
		out = append(out, form.Summary())
	}
	return out, nil
}

// ListDefinitions returns every payform the tenant may administer.
func (s *Service) ListDefinitions(ctx context.Context, tenant tenantctx.Tenant) ([]domain.DefinitionView, error) {
	forms, err := s.registry.ListAccessible(ctx, tenant)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DefinitionView, 0, len(forms))
	for _, form := range forms {
		out = append(out, view(form))
	}
	return out, nil
}

func (s *Service) GetDefinition(ctx context.Context, tenant tenantctx.Tenant, id string) (*domain.DefinitionView, error) {
	form, err := s.accessible(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	v := view(form)
	return &v, nil
}

// UpdateDefinition replaces the administrable fields; arguments must satisfy the variant schema.
func (s *Service) UpdateDefinition(ctx context.Context, tenant tenantctx.Tenant, id string, req UpdateRequest) (*domain.DefinitionView, error) {
	form, err := s.accessible(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	currencies := make([]string, 0, len(req.Currencies))
	seen := map[string]struct{}{}
	for _, code := range req.Currencies {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, dup := seen[code]; dup {
			continue
		}
		if s.catalog != nil {
			ok, err := s.catalog.IsSupported(ctx, code)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCurrency, code)
			}
		}
		seen[code] = struct{}{}
		currencies = append(currencies, code)
	}

	args := form.Definition().Args
	merged := make(map[string]any, len(args)+len(req.Args))
	for k, v := range args {
		merged[k] = v
	}
	for k, v := range req.Args {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := form.ValidateArgs(merged); err != nil {
		return nil, err
	}

	active := req.Active != nil && *req.Active
	err = s.repo.Update(ctx, s.db, tenant.ID, form.ID(), domain.UpdateDefinition{
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		Icon:            strings.TrimSpace(req.Icon),
		Active:          active,
		Currencies:      currencies,
		ExpirationHours: req.ExpirationHours,
		Args:            merged,
		UpdatedAt:       s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("payform.definition.updated",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("payform_id", form.ID()),
		zap.Bool("active", active),
		zap.Strings("currencies", currencies),
	)
	return s.GetDefinition(ctx, tenant, id)
}

// CreatePayment is the order-creation hook entry point.
func (s *Service) CreatePayment(ctx context.Context, tenant tenantctx.Tenant, id string, req CreatePaymentRequest) (*domain.PaymentResponse, error) {
	form, err := s.registry.Resolve(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !tenant.HasFeature(form.RequiredFeature()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if !form.Configured() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConfigured, id)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = tenant.BaseCurrency
	}
	if !form.SupportsCurrency(currency) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
	return form.CreateTransaction(ctx, domain.CreateTransactionRequest{
		Amount:        req.Amount,
		Currency:      currency,
		Metadata:      req.Metadata,
		Payable:       req.Payable,
		ReturnBaseURL: req.ReturnBaseURL,
	})
}

// Commit routes a raw gateway callback to its payform.
func (s *Service) Commit(ctx context.Context, tenant tenantctx.Tenant, id string, req domain.CommitRequest) (*txdomain.StatusEntry, error) {
	form, err := s.registry.Resolve(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	return form.CommitPayment(ctx, req)
}

func (s *Service) accessible(ctx context.Context, tenant tenantctx.Tenant, id string) (domain.PayForm, error) {
	form, err := s.registry.ResolveAny(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !tenant.HasFeature(form.RequiredFeature()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return form, nil
}

func view(form domain.PayForm) domain.DefinitionView {
	def := form.Definition()
	args := map[string]any{}
	for k, v := range def.Args {
		args[k] = v
	}
	return domain.DefinitionView{
		ID:              def.ID,
		PayformID:       def.PayformID,
		Name:            def.Name,
		Description:     def.Description,
		Icon:            def.Icon,
		Active:          def.Active,
		Configured:      form.Configured(),
		Currencies:      append([]string{}, def.Currencies...),
		ExpirationHours: def.ExpirationHours,
		Args:            args,
		Rules:           form.Rules(),
	}
}
