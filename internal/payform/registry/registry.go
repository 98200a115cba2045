package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/zap"
)

// Registry maps stable payform ids to their constructors.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]domain.Factory
	order     []string
	log       *zap.Logger
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		factories: map[string]domain.Factory{},
		log:       log.Named("payform.registry"),
	}
}

// Register binds id to factory. A second registration of the same id fails and keeps the first.
func (r *Registry) Register(id string, factory domain.Factory) error {
	id = strings.TrimSpace(id)
	if id == "" || factory == nil {
		return fmt.Errorf("%w: empty id or factory", domain.ErrInvalidDefinition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyRegistered, id)
	}
	r.factories[id] = factory
	r.order = append(r.order, id)
	return nil
}

// IDs returns registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// ResolveAny instantiates a payform regardless of its active flag.
func (r *Registry) ResolveAny(ctx context.Context, tenant tenantctx.Tenant, id string) (domain.PayForm, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return factory(ctx, tenant)
}

// Resolve instantiates an active payform.
func (r *Registry) Resolve(ctx context.Context, tenant tenantctx.Tenant, id string) (domain.PayForm, error) {
	form, err := r.ResolveAny(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !form.Active() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotActive, id)
	}
	return form, nil
}

// Instantiate builds every registered payform for the tenant.
func (r *Registry) Instantiate(ctx context.Context, tenant tenantctx.Tenant) ([]domain.PayForm, error) {
	ids := r.IDs()
	forms := make([]domain.PayForm, 0, len(ids))
	for _, id := range ids {
		form, err := r.ResolveAny(ctx, tenant, id)
		if err != nil {
			return nil, fmt.Errorf("instantiate payform %s: %w", id, err)
		}
		forms = append(forms, form)
	}
	return forms, nil
}

// AccessibleIDs lists ids whose required feature the tenant holds.
func (r *Registry) AccessibleIDs(ctx context.Context, tenant tenantctx.Tenant) ([]string, error) {
	forms, err := r.ListAccessible(ctx, tenant)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(forms))
	for _, form := range forms {
		ids = append(ids, form.ID())
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAccessible returns every feature-accessible payform, active or not.
func (r *Registry) ListAccessible(ctx context.Context, tenant tenantctx.Tenant) ([]domain.PayForm, error) {
	forms, err := r.Instantiate(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return FilterByFeature(tenant, forms), nil
}

// ListActive applies the feature, active, configured and currency filters in that order.
// An empty currency means the tenant base currency.
func (r *Registry) ListActive(ctx context.Context, tenant tenantctx.Tenant, currency string) ([]domain.PayForm, error) {
	forms, err := r.Instantiate(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(currency) == "" {
		currency = tenant.BaseCurrency
	}
	forms = FilterByFeature(tenant, forms)
	forms = FilterActive(forms)
	forms = FilterConfigured(forms)
	forms = FilterCurrency(forms, currency)
	r.log.Debug("payform.registry.list_active",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("currency", currency),
		zap.Int("count", len(forms)),
	)
	return forms, nil
}

func FilterByFeature(tenant tenantctx.Tenant, forms []domain.PayForm) []domain.PayForm {
	return filter(forms, func(f domain.PayForm) bool { return tenant.HasFeature(f.RequiredFeature()) })
}

func FilterActive(forms []domain.PayForm) []domain.PayForm {
	return filter(forms, func(f domain.PayForm) bool { return f.Active() })
}

func FilterConfigured(forms []domain.PayForm) []domain.PayForm {
	return filter(forms, func(f domain.PayForm) bool { return f.Configured() })
}

func FilterCurrency(forms []domain.PayForm, currency string) []domain.PayForm {
	return filter(forms, func(f domain.PayForm) bool { return f.SupportsCurrency(currency) })
}

func filter(forms []domain.PayForm, keep func(domain.PayForm) bool) []domain.PayForm {
	out := make([]domain.PayForm, 0, len(forms))
	for _, f := range forms {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
