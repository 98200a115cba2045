package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/pkg/tenantctx"
)

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	Get(ctx context.Context, id snowflake.ID) (*Tenant, error)
	// Resolve builds the explicit tenant scope every payform call receives.
	Resolve(ctx context.Context, id snowflake.ID) (tenantctx.Tenant, error)
}

type CreateTenantRequest struct {
	Name         string `json:"name"`
	BaseCurrency string `json:"base_currency"`
}

// PayformInitializer prepares the payform definitions of a new tenant.
type PayformInitializer interface {
	EnsureTenantPayforms(ctx context.Context, tenant tenantctx.Tenant) error
}

var (
	ErrNotFound        = errors.New("tenant_not_found")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidTenant   = errors.New("invalid_tenant")
)
