package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/feature/domain"
	"github.com/smallbiznis/payforms/internal/feature/repository"
	"github.com/smallbiznis/payforms/internal/feature/service"
	"github.com/smallbiznis/payforms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGateIncludesBasicFeatures(t *testing.T) {
	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	tenantID := testutil.SeedTenant(t, db, node, "CUP")

	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: clock.SystemClock{}})

	gate, err := svc.Gate(context.Background(), tenantID)
	require.NoError(t, err)
	assert.True(t, gate.HasFeature(domain.FeatureCashPayform))
	assert.False(t, gate.HasFeature(domain.FeatureEnzonaPayform))
}

func TestGrantAndRevokeInvalidateCache(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	tenantID := testutil.SeedTenant(t, db, node, "CUP")

	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: clock.SystemClock{}})

	_, err := svc.Gate(ctx, tenantID)
	require.NoError(t, err)

	require.NoError(t, svc.Grant(ctx, tenantID, domain.FeatureEnzonaPayform))
	gate, err := svc.Gate(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, gate.HasFeature(domain.FeatureEnzonaPayform))

	require.NoError(t, svc.Grant(ctx, tenantID, domain.FeatureEnzonaPayform))
	testutil.AssertCount(t, db, "tenant_features", 1, "tenant_id = ?", tenantID)

	require.NoError(t, svc.Revoke(ctx, tenantID, domain.FeatureEnzonaPayform))
	gate, err = svc.Gate(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, gate.HasFeature(domain.FeatureEnzonaPayform))

	codes, err := svc.List(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FeatureCashPayform}, codes)
}

func TestGrantRejectsUnknownAndBasicRevocation(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupDB(t)
	node := testutil.Node(t)
	tenantID := testutil.SeedTenant(t, db, node, "CUP")

	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: clock.SystemClock{}})

	assert.ErrorIs(t, svc.Grant(ctx, tenantID, "teleport"), domain.ErrInvalidCode)
	assert.ErrorIs(t, svc.Revoke(ctx, tenantID, domain.FeatureCashPayform), domain.ErrBasicFeature)
	assert.ErrorIs(t, svc.Grant(ctx, 0, domain.FeatureEnzonaPayform), domain.ErrInvalidTenant)
}
