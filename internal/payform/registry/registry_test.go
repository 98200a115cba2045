package registry_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/payforms/internal/payform/cash"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/enzona"
	"github.com/smallbiznis/payforms/internal/payform/payformtest"
	"github.com/smallbiznis/payforms/internal/payform/registry"
	"github.com/smallbiznis/payforms/internal/payform/transfermovil"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRegistry(t *testing.T, f *payformtest.Fixture) *registry.Registry {
	t.Helper()
	r := registry.New(zap.NewNop())
	require.NoError(t, r.Register(cash.ID, cash.Factory(f.Deps)))
	require.NoError(t, r.Register(enzona.ID, enzona.Factory(f.Deps)))
	require.NoError(t, r.Register(transfermovil.ID, transfermovil.Factory(f.Deps)))
	return r
}

func ids(forms []domain.PayForm) []string {
	out := make([]string, 0, len(forms))
	for _, f := range forms {
		out = append(out, f.ID())
	}
	return out
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := payformtest.New(t)
	r := newRegistry(t, f)

	err := r.Register(cash.ID, cash.Factory(f.Deps))
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
	assert.Equal(t, []string{cash.ID, enzona.ID, transfermovil.ID}, r.IDs())
}

func TestResolve(t *testing.T) {
	f := payformtest.New(t)
	r := newRegistry(t, f)
	ctx := context.Background()

	_, err := r.ResolveAny(ctx, f.Tenant, "paypal")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Resolve(ctx, f.Tenant, cash.ID)
	assert.ErrorIs(t, err, domain.ErrNotActive)

	form, err := r.ResolveAny(ctx, f.Tenant, cash.ID)
	require.NoError(t, err)
	assert.False(t, form.Active())

	f.Activate(t, cash.ID, []string{"CUP"}, nil)
	form, err = r.Resolve(ctx, f.Tenant, cash.ID)
	require.NoError(t, err)
	assert.True(t, form.Active())
}

func TestListActiveFilters(t *testing.T) {
	f := payformtest.New(t)
	r := newRegistry(t, f)
	ctx := context.Background()

	// first instantiation creates the definitions
	_, err := r.Instantiate(ctx, f.Tenant)
	require.NoError(t, err)

	f.Activate(t, cash.ID, []string{"CUP", "USD"}, nil)
	// active but missing its credentials
	f.Activate(t, enzona.ID, []string{"CUP"}, nil)
	f.Activate(t, transfermovil.ID, []string{"USD"}, map[string]any{
		"source":       "1",
		"username":     "shop",
		"clientID":     "2",
		"clientSecret": "x",
		"publicKey":    "pem",
		"url":          "https://tm.test",
	})

	forms, err := r.ListActive(ctx, f.Tenant, "")
	require.NoError(t, err)
	assert.Equal(t, []string{cash.ID}, ids(forms))

	forms, err = r.ListActive(ctx, f.Tenant, "usd")
	require.NoError(t, err)
	assert.Equal(t, []string{cash.ID, transfermovil.ID}, ids(forms))

	cashOnly := f.Tenant
	cashOnly.Features = tenantctx.StaticGate{"cash-payform": true}
	forms, err = r.ListActive(ctx, cashOnly, "USD")
	require.NoError(t, err)
	assert.Equal(t, []string{cash.ID}, ids(forms))

	accessible, err := r.AccessibleIDs(ctx, cashOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{cash.ID}, accessible)

	all, err := r.AccessibleIDs(ctx, f.Tenant)
	require.NoError(t, err)
	assert.Equal(t, []string{cash.ID, enzona.ID, transfermovil.ID}, all)
}
