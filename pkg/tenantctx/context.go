package tenantctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type keyType string

const (
	TenantIDKey keyType = "tenant_id"
)

// FeatureGate answers whether a tenant has been granted a feature.
type FeatureGate interface {
	HasFeature(code string) bool
}

// Tenant is the explicit tenant scope passed into every payform call.
type Tenant struct {
	ID           snowflake.ID
	BaseCurrency string
	Features     FeatureGate
}

func (t Tenant) HasFeature(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return true
	}
	if t.Features == nil {
		return false
	}
	return t.Features.HasFeature(code)
}

// StaticGate is a fixed feature set.
type StaticGate map[string]bool

func (g StaticGate) HasFeature(code string) bool {
	return g[strings.TrimSpace(code)]
}

func WithTenantID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

func TenantID(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch typed := ctx.Value(TenantIDKey).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return parsed, parsed != 0
	}
	return 0, false
}
