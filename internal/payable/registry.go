package payable

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Resolvers []domain.Resolver `group:"payable_resolvers"`
}

// Registry dispatches payable lookups to the resolver owning the type tag.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]domain.Resolver
}

func NewRegistry(p Params) (*Registry, error) {
	r := &Registry{resolvers: map[string]domain.Resolver{}}
	for _, resolver := range p.Resolvers {
		if err := r.Register(resolver); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(resolver domain.Resolver) error {
	if resolver == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, typ := range resolver.Types() {
		key := normalizeType(typ)
		if key == "" {
			continue
		}
		if _, exists := r.resolvers[key]; exists {
			return fmt.Errorf("payable type %q already registered", key)
		}
		r.resolvers[key] = resolver
	}
	return nil
}

// Resolve returns ErrUnsupported for unknown type tags and ErrNotFound for missing ids.
func (r *Registry) Resolve(ctx context.Context, tenant tenantctx.Tenant, ref domain.Ref) (domain.Payable, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	resolver, ok := r.resolvers[normalizeType(ref.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUnsupported
	}
	return resolver.Resolve(ctx, tenant, domain.Ref{Type: normalizeType(ref.Type), ID: strings.TrimSpace(ref.ID)})
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.resolvers))
	for typ := range r.resolvers {
		types = append(types, typ)
	}
	return types
}

func normalizeType(typ string) string {
	return strings.ToLower(strings.TrimSpace(typ))
}
