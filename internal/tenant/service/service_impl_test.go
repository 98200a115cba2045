package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/payforms/internal/cache"
	"github.com/smallbiznis/payforms/internal/clock"
	featuredomain "github.com/smallbiznis/payforms/internal/feature/domain"
	featurerepository "github.com/smallbiznis/payforms/internal/feature/repository"
	featureservice "github.com/smallbiznis/payforms/internal/feature/service"
	"github.com/smallbiznis/payforms/internal/reference"
	"github.com/smallbiznis/payforms/internal/tenant/domain"
	"github.com/smallbiznis/payforms/internal/tenant/repository"
	"github.com/smallbiznis/payforms/internal/tenant/service"
	"github.com/smallbiznis/payforms/internal/testutil"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingInitializer struct {
	seen []tenantctx.Tenant
}

func (r *recordingInitializer) EnsureTenantPayforms(_ context.Context, tenant tenantctx.Tenant) error {
	r.seen = append(r.seen, tenant)
	return nil
}

func newService(t *testing.T) (*gorm.DB, domain.Service, *recordingInitializer) {
	t.Helper()
	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	features := featureservice.New(featureservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: featurerepository.Provide(), Clock: clock.SystemClock{},
	})
	initializer := &recordingInitializer{}
	svc := service.New(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Clock:    clock.SystemClock{},
		Catalog:  reference.NewCatalog(reference.NewRepository(db)),
		Features: features,
		Payforms: initializer,
	})
	return db, svc, initializer
}

func TestCreateTenant(t *testing.T) {
	db, svc, seeded := newService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Dulcería La Habana", BaseCurrency: "cup"})
	require.NoError(t, err)
	assert.Equal(t, "dulceria-la-habana", tenant.Slug)
	assert.Equal(t, "CUP", tenant.BaseCurrency)

	second, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Dulcería  La Habana", BaseCurrency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "dulceria-la-habana-2", second.Slug)
	testutil.AssertCount(t, db, "tenants", 2, "")

	require.Len(t, seeded.seen, 2)
	assert.Equal(t, tenant.ID, seeded.seen[0].ID)
	assert.Equal(t, "CUP", seeded.seen[0].BaseCurrency)
	assert.True(t, seeded.seen[0].HasFeature(featuredomain.FeatureCashPayform))
}

func TestCreateTenantValidation(t *testing.T) {
	_, svc, seeded := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateTenantRequest{Name: " ", BaseCurrency: "CUP"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{Name: "Shop", BaseCurrency: "BTC"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
	assert.Empty(t, seeded.seen)
}

func TestResolve(t *testing.T) {
	_, svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Shop", BaseCurrency: "MLC"})
	require.NoError(t, err)

	scope, err := svc.Resolve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, scope.ID)
	assert.Equal(t, "MLC", scope.BaseCurrency)
	assert.False(t, scope.HasFeature(featuredomain.FeatureEnzonaPayform))

	_, err = svc.Resolve(ctx, created.ID+1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveUsesTenantCache(t *testing.T) {
	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	features := featureservice.New(featureservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: featurerepository.Provide(), Clock: clock.SystemClock{},
	})
	tenantCache := cache.NewTenantCache()
	svc := service.New(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		Clock:    clock.SystemClock{},
		Catalog:  reference.NewCatalog(reference.NewRepository(db)),
		Features: features,
		Cache:    tenantCache,
	})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Cached", BaseCurrency: "USD"})
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, created.ID)
	require.NoError(t, err)

	record, ok := tenantCache.GetTenant(created.ID)
	require.True(t, ok)
	assert.Equal(t, "USD", record.BaseCurrency)

	require.NoError(t, db.Exec("DELETE FROM tenants WHERE id = ?", created.ID).Error)
	scope, err := svc.Resolve(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "USD", scope.BaseCurrency)
}
